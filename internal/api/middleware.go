package api

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/semmidev/backuppilot/internal/infrastructure/metrics"
	"github.com/semmidev/backuppilot/internal/usecase"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// requestLog records every request in the duration histogram and the log.
func requestLog(log usecase.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			dur := time.Since(start)

			metrics.RecordRequest(r.Method, r.URL.Path, wrap.status, dur)
			log.Debugf("%s %s %d %dB %s request_id=%s",
				r.Method, r.URL.Path, wrap.status, wrap.size, dur.Round(time.Millisecond), chimw.GetReqID(r.Context()))
		})
	}
}
