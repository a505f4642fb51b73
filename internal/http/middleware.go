package httpx

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/medialoom/coordinator/internal/signing"
)

const maxWebhookBodyBytes = 1 << 20 // 1MB; progress envelopes are small

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// VerifySignature returns a middleware that verifies the x-signature header
// against the exact raw request body. Verification happens before any JSON
// decoding so re-serialization drift can never invalidate a signature. The
// body is rewound for downstream handlers.
func VerifySignature(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
			if err != nil {
				WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "read_body_failed", Err: err})
				return
			}
			_ = r.Body.Close()
			if len(body) > maxWebhookBodyBytes {
				WriteError(w, ErrorParams{
					Code:    http.StatusRequestEntityTooLarge,
					ErrCode: "body_too_large",
					Err:     errors.New("request body exceeds limit"),
				})
				return
			}

			sig := r.Header.Get(signing.Header)
			if sig == "" || !signing.Verify(secret, body, sig) {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "invalid_signature",
					Err:     errors.New("signature verification failed"),
				})
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
