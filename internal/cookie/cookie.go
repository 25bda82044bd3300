package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/authbridge/internal/envutil"
	"github.com/dgellow/authbridge/internal/log"
)

// Cookie names set by the origin site
const (
	SessionCookie = "authbridge_session"
	CSRFCookie    = "authbridge_csrf"
)

// CSRFMaxAge is how long a CSRF cookie lives.
const CSRFMaxAge = 24 * time.Hour

// sessionSameSite returns the SameSite mode for the session cookie. The gate
// reads the session from inside a cross-site iframe, which only carries
// SameSite=None cookies. Development over plain http falls back to Lax,
// since None requires Secure.
func sessionSameSite() (http.SameSite, bool) {
	if envutil.IsDev() {
		return http.SameSiteLaxMode, false
	}
	return http.SameSiteNoneMode, true
}

// SetSession sets the origin session cookie
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	sameSite, secure := sessionSameSite()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetCSRF sets a CSRF token cookie
func SetCSRF(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: false, // read by the login page script for the double-submit header
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(CSRFMaxAge.Seconds()),
	})
}

// ClearSession removes the session cookie. The attributes must match the
// ones it was set with or browsers keep the original.
func ClearSession(w http.ResponseWriter) {
	sameSite, secure := sessionSameSite()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetCSRF retrieves the CSRF cookie value
func GetCSRF(r *http.Request) (string, error) {
	return Get(r, CSRFCookie)
}
