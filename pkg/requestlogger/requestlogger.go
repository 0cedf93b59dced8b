// Package requestlogger logs every request served by the fake API.
package requestlogger

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"
)

const unknown = "n/a"

// Middleware logs one line per request, except for paths listed in
// pathFilters.
func Middleware(logger zerolog.Logger, pathFilters ...string) func(next http.Handler) http.Handler {
	filtered := make(map[string]struct{}, len(pathFilters))
	for _, filter := range pathFilters {
		filtered[filter] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if _, ok := filtered[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			defer func() {
				bytesIn, err := strconv.Atoi(r.Header.Get("Content-Length"))
				if err != nil {
					bytesIn = 0
				}

				requestID := middleware.GetReqID(r.Context())
				if requestID == "" {
					requestID = unknown
				}

				logger.Info().Timestamp().Fields(map[string]interface{}{
					"request_id": requestID,
					"remote_ip":  r.RemoteAddr,
					"request":    fmt.Sprintf("%s %s (response_code: %d)", r.Method, r.URL.Path, ww.Status()),
					"browser":    browser(r.Header.Get("User-Agent")),
					"latency_ms": float64(time.Since(start).Nanoseconds()) / 1000000.0,
					"bytes_in":   bytesIn,
					"bytes_out":  ww.BytesWritten(),
				}).Msg("incoming_request")
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}

func browser(userAgent string) string {
	ua := useragent.Parse(userAgent)
	if ua.Name == "" {
		return unknown
	}

	if ua.OS == "" {
		return ua.Name
	}

	return fmt.Sprintf("%s (%s)", ua.Name, ua.OS)
}
