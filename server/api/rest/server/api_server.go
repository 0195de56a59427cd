package server

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/buildbeaver/depchain/common/logger"
)

const requestTimeout = 60 * time.Second

type APIServerConfig struct {
	HTTPServerConfig
	// AllowedOrigins lists the origins allowed to make cross-origin requests, or empty to disallow them.
	AllowedOrigins []string
}

type AppAPIServer struct {
	APIServer
	events *EventAPI
}

func NewAppAPIServer(router *AppAPIRouter, events *EventAPI, config APIServerConfig, httpServerFactory HTTPServerFactory, logFactory logger.LogFactory) (*AppAPIServer, error) {
	httpServer, err := httpServerFactory(router, config.HTTPServerConfig, logFactory("AppAPIServer"))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP server: %w", err)
	}
	return &AppAPIServer{
		APIServer: httpServer,
		events:    events,
	}, nil
}

// CloseEventStreams disconnects every event stream client. Call before Stop.
func (s *AppAPIServer) CloseEventStreams() {
	s.events.Close()
}

type AppAPIRouter struct {
	chi.Router
}

func NewAppAPIRouter(
	job *JobAPI,
	run *RunAPI,
	plan *PlanAPI,
	artifact *ArtifactAPI,
	events *EventAPI,
	config APIServerConfig,
	logFactory logger.LogFactory) *AppAPIRouter {

	logger := logFactory("AppAPIRouter").
		WithField("version", "v1")

	middleware.DefaultLogger = middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger, NoColor: true})
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	allowOrigins := func(r chi.Router) {
		if len(config.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: config.AllowedOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
				ExposedHeaders: []string{"Id", "Location", "ETag"},
				MaxAge:         300, // Maximum value not ignored by any of major browsers
			}))
		}
	}

	// Event streams are long-lived and need the server's own response writer, so they are served
	// without request logging, compression or a request timeout
	r.Group(func(r chi.Router) {
		allowOrigins(r)
		r.Get("/api/v1/events", events.Stream)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		allowOrigins(r)
		r.Use(middleware.Compress(6))
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Get("/", job.List)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", job.Get)
				r.Get("/plan", job.GetPlan)
				r.Get("/runs", job.ListRuns)
				r.Post("/runs", job.CreateRun)
			})
		})
		r.Route("/api/v1/plans/{plan_id}", func(r chi.Router) {
			r.Get("/runs", plan.ListRuns)
			r.Get("/events", plan.GetEvents)
		})
		r.Route("/api/v1/runs/{run_id}", func(r chi.Router) {
			r.Get("/", run.Get)
			r.Get("/artifacts", run.ListArtifacts)
		})
		r.Route("/api/v1/artifacts/{artifact_id}", func(r chi.Router) {
			r.Get("/", artifact.Get)
			r.Get("/data", artifact.GetData)
		})
	})
	return &AppAPIRouter{Router: r}
}
