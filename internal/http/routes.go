package httpx

import (
	"log/slog"
	"net/http"

	"github.com/medialoom/coordinator/internal/core"
	"github.com/medialoom/coordinator/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Jobs   *service.JobStateService
	Store  core.ObjectStore
	Secret []byte       // Shared webhook signing secret
	Logger *slog.Logger // Optional
}

// NewRouter creates and configures the coordinator's HTTP router. The init
// and progress endpoints sit behind signature verification; query and
// artifact reads are poll surfaces for the consumer and stay unsigned.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	artifactHandlers := &ArtifactHandlers{Store: services.Store, Svc: services.Jobs}
	signed := VerifySignature(services.Secret)

	mux := http.NewServeMux()
	mux.Handle("POST /api/jobs", signed(http.HandlerFunc(jobHandlers.Init)))
	mux.Handle("POST /api/jobs/{id}/progress", signed(http.HandlerFunc(jobHandlers.Progress)))
	mux.Handle("GET /api/jobs/{id}", http.HandlerFunc(jobHandlers.Query))
	mux.Handle("DELETE /api/jobs/{id}", http.HandlerFunc(jobHandlers.Delete))
	mux.Handle("GET /api/artifacts/{key...}", http.HandlerFunc(artifactHandlers.Read))
	mux.Handle("DELETE /api/jobs/{id}/artifacts", http.HandlerFunc(artifactHandlers.DeleteForJob))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return Logging(logger)(Recover(logger)(mux))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
