package http

import (
	"net/http"

	"datalab-quiz-service/internal/app"
	"go.uber.org/zap"
)

// NewRouter wires the REST API, the quiz socket and the health check.
func NewRouter(service *app.QuizService, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	NewRESTHandler(service, log).Register(mux)
	NewWSHandler(service, log).Register(mux)
	return mux
}
