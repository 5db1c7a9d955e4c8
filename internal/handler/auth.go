package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// AccessHeader carries the local access password when basic auth is not used.
const AccessHeader = "X-Access-Password"

// HashAccessPassword returns the bcrypt hash for WithAccessPassword.
func HashAccessPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// requireAccess rejects requests without the access password. It is a no-op
// when no password is configured.
func (h *Handler) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.accessHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		password := r.Header.Get(AccessHeader)
		if password == "" {
			_, password, _ = r.BasicAuth()
		}
		if password == "" || bcrypt.CompareHashAndPassword(h.accessHash, []byte(password)) != nil {
			slog.Warn("access denied", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="worksheetgen"`)
			writeError(w, r, http.StatusUnauthorized, "AccessDenied", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
