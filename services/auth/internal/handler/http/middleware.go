package http

import (
	"mime"
	"net/http"

	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ContentTypeJSON rejects requests that carry a body declared as anything
// other than application/json. Requests without a Content-Type header are
// let through and fail JSON decoding on their own if malformed.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if r.ContentLength != 0 && ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:      "UNSUPPORTED_MEDIA_TYPE",
						Message:   "Content-Type deve ser application/json",
						MessageEN: "Content-Type must be application/json",
						RequestID: logger.CorrelationIDFromContext(r.Context()),
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// writeSuccess writes a success envelope carrying both data and a bilingual message.
func writeSuccess(w http.ResponseWriter, status int, data any, message, messageEN string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Success:   true,
		Data:      data,
		Message:   message,
		MessageEN: messageEN,
	})
}
