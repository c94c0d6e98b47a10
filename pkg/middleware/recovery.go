package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
)

// Recovery recovers from panics and answers with the generic internal error
// envelope instead of crashing the server.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestLogger(r, l).ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)

				httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
					Error: internalBody(r, fmt.Errorf("panic: %v", rec)),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func internalBody(r *http.Request, err error) *httputil.ErrorResponse {
	appErr := apperrors.Internal(err)
	return &httputil.ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		MessageEN: appErr.MessageEN,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}
}
