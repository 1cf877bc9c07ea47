package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"support-console/internal/api/middleware"
	"support-console/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// MakeHTTPHandleFunc runs f on the request queue and renders its error.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, extra ...middleware.Middleware) http.HandlerFunc {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "X-Request-ID"},
		AllowCredentials: true,
	}

	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		s.requestQueueManager.EnqueueJob(job)

		err := <-errc
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				s.logger.Warn("request failed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", httpErr.StatusCode,
					"error", httpErr.ErrorLog,
				)
				WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
			} else {
				s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
				WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
			}
		}
	}

	for _, m := range extra {
		baseHandler = m(baseHandler)
	}

	return middleware.Chain(baseHandler,
		middleware.CORS(corsConfig),
		middleware.Logging(s.logger),
	)
}
