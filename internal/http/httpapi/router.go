package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"promoreel/internal/http/handlers"
	"promoreel/internal/middleware"
)

type RouterConfig struct {
	JWTSecret       string
	CORSOrigins     []string
	DefaultLocale   string
	RateLimitPerMin int
	// CountryLookup is optional; without it the locale comes from headers only.
	CountryLookup middleware.CountryLookup
	Logger        zerolog.Logger
}

func NewRouter(app *handlers.App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(cfg.Logger),
		middleware.CORS(cfg.CORSOrigins),
		middleware.I18N(cfg.DefaultLocale, cfg.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthJWT(cfg.JWTSecret),
			middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
		)

		r.Route("/v1/tasks", func(r chi.Router) {
			r.Get("/", app.ListTasks)
			r.Post("/", app.CreateTask)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetTask)
				r.Delete("/", app.DeleteTask)
				r.Get("/status", app.TaskStatus)
				r.Post("/retry", app.RetryTask)
				r.Post("/cancel", app.CancelTask)
				r.Get("/archive", app.TaskArchive)
			})
		})
		r.Get("/v1/assets/*", app.ServeAsset)
	})

	return r
}
