package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharebox/internal/auth"
	"sharebox/internal/metrics"
)

type Handlers struct {
	Files  *FileHandler
	Spaces *SpaceHandler
	Shares *ShareHandler
}

// NewRouter собирает HTTP-маршруты. Гостевые маршруты доступны без токена,
// маршруты владельца требуют аутентификации.
func NewRouter(verifier *auth.Verifier, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-File-Password"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(verifier))

		// Гостевой доступ по ссылкам
		r.Get("/shares/file/verify", h.Shares.VerifyFileSecret)
		r.Get("/shares/space/verify", h.Shares.VerifySpaceSecret)
		r.Get("/shares/file/{fileId}/download", h.Shares.DownloadFile)
		r.Get("/shares/space/{spaceId}/access", h.Shares.SpaceAccess)
		r.Get("/shares/space/{spaceId}/download", h.Shares.DownloadSpace)

		r.Group(func(r chi.Router) {
			r.Use(RequireCaller)

			r.Get("/spaces", h.Spaces.ListSpaces)
			r.Post("/spaces", h.Spaces.CreateSpace)
			r.Route("/spaces/{spaceId}", func(r chi.Router) {
				r.Get("/", h.Spaces.GetSpace)
				r.Put("/", h.Spaces.RenameSpace)
				r.Delete("/", h.Spaces.DeleteSpace)
				r.Post("/lock", h.Spaces.LockSpace)
				r.Post("/unlock", h.Spaces.UnlockSpace)
				r.Get("/download", h.Spaces.DownloadSpace)
				r.Post("/files", h.Files.UploadFile)
			})

			r.Route("/files/{fileId}", func(r chi.Router) {
				r.Get("/", h.Files.GetFile)
				r.Put("/", h.Files.RenameFile)
				r.Delete("/", h.Files.DeleteFile)
				r.Get("/download", h.Files.DownloadFile)
				r.Post("/lock", h.Files.LockFile)
				r.Post("/unlock", h.Files.UnlockFile)
			})

			// Маршруты ссылок не монтируются подроутером: рядом гостевые /download и /access
			r.Get("/shares/file/{fileId}", h.Shares.ListFileLinks)
			r.Post("/shares/file/{fileId}", h.Shares.CreateFileLink)
			r.Patch("/shares/file/{fileId}/{secret}", h.Shares.ModifyFileLink)
			r.Delete("/shares/file/{fileId}/{secret}", h.Shares.RemoveFileLink)

			r.Get("/shares/space/{spaceId}", h.Shares.ListSpaceLinks)
			r.Post("/shares/space/{spaceId}", h.Shares.CreateSpaceLink)
			r.Patch("/shares/space/{spaceId}/{secret}", h.Shares.ModifySpaceLink)
			r.Delete("/shares/space/{spaceId}/{secret}", h.Shares.RemoveSpaceLink)
		})
	})

	return r
}
