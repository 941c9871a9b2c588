package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
)

// requestRecorder captures the response status and collects extra fields
// handlers want on the request log line.
type requestRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	attrs       []slog.Attr
}

func (w *requestRecorder) WriteHeader(code int) {
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *requestRecorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b) //nolint:wrapcheck // passthrough
}

// annotate adds attrs to the log line of the request being served by w.
func annotate(w http.ResponseWriter, attrs ...slog.Attr) {
	if rec, ok := w.(*requestRecorder); ok {
		rec.attrs = append(rec.attrs, attrs...)
	}
}

// Instrument recovers handler panics and logs one line per request. Health checks and
// scrapes arrive continuously, so successful requests are logged at debug.
func Instrument(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &requestRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					rec.attrs = append(rec.attrs,
						slog.Any("panic", p),
						slog.String("stacktrace", string(debug.Stack())))
					if !rec.wroteHeader {
						rec.WriteHeader(http.StatusInternalServerError)
					} else {
						rec.status = http.StatusInternalServerError
					}
				}

				attrs := append([]slog.Attr{
					slog.String("method", r.Method),
					slog.String("route", routeTemplate(r)),
					slog.Int("status", rec.status),
					slog.Duration("latency", time.Since(start)),
					slog.String("remote_ip", r.RemoteAddr),
				}, rec.attrs...)

				log.LogAttrs(r.Context(), requestLevel(rec.status), "request", attrs...)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func requestLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
