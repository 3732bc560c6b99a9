package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paperdesk/paperdesk-api/internal/api"
	apiMiddleware "github.com/paperdesk/paperdesk-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	recognitionHandler := api.NewRecognitionHandler(app.registry)
	feedHandler := api.NewTaskFeedHandler(app.registry, app.bus, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/attachments/{attachmentID}/recognition", recognitionHandler.StartTask)
		r.Get("/attachments/{attachmentID}/recognition", recognitionHandler.GetTask)
		r.Get("/attachments/{attachmentID}/recognition/progress", recognitionHandler.GetProgress)

		r.Get("/letters/{letterID}/recognitions", recognitionHandler.ListByLetter)

		r.Delete("/recognition/tasks/{taskID}", recognitionHandler.CancelTask)
	})

	r.Get("/ws/recognition", feedHandler.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
