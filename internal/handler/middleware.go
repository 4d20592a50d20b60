package handler

import (
	"errors"
	"log"
	"net/http"

	"sharebox/internal/auth"
)

// Authenticate кладёт вызывающего в контекст. Запрос без токена проходит
// как гостевой; неверный токен отклоняется.
func Authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := verifier.VerifyToken(r)
			if errors.Is(err, auth.ErrNoToken) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				log.Printf("[Authenticate] token rejected: %v", err)
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireCaller пропускает только аутентифицированные запросы
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.CallerFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
