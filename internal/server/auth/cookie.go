package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/common"
)

// CookieSettings is the one attribute set used to both write and delete the
// session cookie. A browser only deletes a cookie when name, domain and path
// all match, so Set and Clear build their cookies through the same method.
type CookieSettings struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

func (s CookieSettings) build(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.Name,
		Value:    value,
		Domain:   s.Domain,
		Path:     s.Path,
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   s.Secure,
		HttpOnly: true,
		SameSite: s.SameSite,
	}
}

// Set writes the session cookie carrying token until expiresAt.
func (s CookieSettings) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, s.build(token, expiresAt.UTC(), 0))
}

// Clear expires the session cookie.
func (s CookieSettings) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.build("", time.Unix(0, 0).UTC(), -1))
}

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the session cookie. It returns "" when neither is present.
func (s CookieSettings) TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(common.AuthorizationHeaderName); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(s.Name); err == nil {
		return c.Value
	}
	return ""
}
