package httpapi

import (
	"context"
	"net/http"

	"github.com/casanet/remote-server/internal/protocol"
	"github.com/casanet/remote-server/internal/server/auth"
)

const (
	sessionCookie      = "session"
	adminSessionCookie = "admin_session"
)

type adminKey struct{}

func (s *Server) forwardSession(r *http.Request) (*auth.ForwardClaims, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, err
	}
	return auth.ParseForwardToken(c.Value, s.opts.SecretKey)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(adminSessionCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized)
			return
		}

		claims, err := auth.ParseAdminToken(c.Value, s.opts.SecretKey)
		if err != nil {
			writeError(w, http.StatusUnauthorized, protocol.CodeUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, claims.Email)))
	})
}

func adminEmail(ctx context.Context) string {
	email, _ := ctx.Value(adminKey{}).(string)
	return email
}

// setForwardSession stores the local server session of mac in the session
// cookie. An empty key or a non-positive max age clears it.
func (s *Server) setForwardSession(w http.ResponseWriter, mac string, session *protocol.HTTPSession) error {
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}

	if session.Key == "" || session.MaxAge <= 0 {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		return nil
	}

	validity := s.opts.SessionValidity
	if d := secondsToDuration(session.MaxAge); d < validity {
		validity = d
	}

	token, err := auth.GenerateForwardToken(mac, session.Key, s.opts.SecretKey, validity)
	if err != nil {
		return err
	}

	cookie.Value = token
	cookie.MaxAge = int(validity.Seconds())
	http.SetCookie(w, cookie)
	return nil
}
