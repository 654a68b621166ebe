package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/web/handlers"
	"github.com/kozaktomas/class-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	classesHandler := handlers.NewClassesHandler()
	studentsHandler := handlers.NewStudentsHandler()
	enrollHandler := handlers.NewEnrollHandler(s.config, s.decoder, s.faces)
	attendanceHandler := handlers.NewAttendanceHandler(s.config, s.decoder, s.faces)

	// Health check (no auth required)
	s.router.Get("/", handlers.ServiceInfo(s.config))
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Classes
		r.Get("/classes", classesHandler.List)
		r.Post("/classes", classesHandler.Create)
		r.Get("/classes/{id}/sessions", classesHandler.Sessions)

		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/enroll", enrollHandler.Enroll)

		// Attendance
		r.Post("/attendance", attendanceHandler.Create)
		r.Get("/attendance/{id}", attendanceHandler.Get)

		// Config
		r.Get("/config", configHandler.Get)
	})
}
