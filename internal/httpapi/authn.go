package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"globalbangla.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
	cookieName = "gb_token"

	challenge = `Bearer realm="globalbangla"`
)

// Authenticate resolves the gb_token cookie, or failing that the bearer
// header, into a Principal. Requests without a valid credential stop here.
func Authenticate(verifier auth.CredentialVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := credentialFromRequest(r)
			if credential == "" {
				unauthorized(w, r, auth.ErrUnauthenticated)
				return
			}
			principal, err := verifier.Verify(r.Context(), credential)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredential):
					unauthorized(w, r, err)
				default:
					handleError(w, r, err)
				}
				return
			}
			ctx := auth.ContextWithPrincipal(r.Context(), principal)
			ctx = auth.ContextWithCredential(ctx, credential)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits principals accepted by pred. It must run after
// Authenticate.
func RequireRole(pred auth.Predicate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.Authorize(r.Context(), pred); err != nil {
				if errors.Is(err, auth.ErrForbidden) {
					w.Header().Set("WWW-Authenticate", challenge+`, error="insufficient_scope"`)
					handleError(w, r, err)
					return
				}
				unauthorized(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrInvalidCredential) {
		w.Header().Set("WWW-Authenticate", challenge+`, error="invalid_token"`)
	} else {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	handleError(w, r, err)
}

func credentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	return extractBearerToken(r.Header.Get(authHeader))
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func principalOf(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func (a *API) setSessionCookie(w http.ResponseWriter, cred auth.Credential) {
	maxAge := int(time.Until(cred.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int((7 * 24 * time.Hour).Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    cred.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.sameSite(),
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: a.sameSite(),
	})
}

// Browsers drop SameSite=None cookies that are not Secure.
func (a *API) sameSite() http.SameSite {
	if a.cookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
