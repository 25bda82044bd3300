package server

import (
	"errors"
	"net/http"

	"github.com/dgellow/authbridge/internal/browserauth"
	"github.com/dgellow/authbridge/internal/cookie"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/emailutil"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/session"
)

// CSRFHeader carries the double-submitted CSRF token on writes.
const CSRFHeader = "X-CSRF-Token"

// SessionResponse is the body of every session endpoint read.
type SessionResponse struct {
	User *session.User `json:"user"`
}

// SignInRequest is the body of POST /api/session.
type SignInRequest struct {
	RefreshToken string `json:"refresh_token"`
	Email        string `json:"email,omitempty"`
}

// CSRFResponse is the body of GET /api/session/csrf.
type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// SessionHandlers expose the origin session to same-origin pages: the gate
// polls it and the origin's login flow writes it.
type SessionHandlers struct {
	sessions *browserauth.Sessions
	csrf     crypto.CSRFProtection
}

// NewSessionHandlers creates the session endpoint handlers
func NewSessionHandlers(sessions *browserauth.Sessions, csrf crypto.CSRFProtection) *SessionHandlers {
	return &SessionHandlers{sessions: sessions, csrf: csrf}
}

// GetHandler returns the signed-in user or null. A bad cookie is cleared and
// reads as signed out.
func (h *SessionHandlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.sessions.Read(r)
	if err != nil {
		if errors.Is(err, browserauth.ErrInvalidSession) {
			log.LogDebugWithFields("session", "Clearing invalid session cookie", map[string]any{
				"error":      err.Error(),
				"request_id": RequestID(r.Context()),
			})
			h.sessions.Clear(w)
		}
		user = nil
	}
	_ = jsonwriter.WriteNoStore(w, SessionResponse{User: user})
}

// CSRFHandler issues a CSRF token as both a cookie and a response body.
func (h *SessionHandlers) CSRFHandler(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate()
	if err != nil {
		log.LogErrorWithFields("session", "Failed to generate CSRF token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to generate CSRF token")
		return
	}
	cookie.SetCSRF(w, token)
	_ = jsonwriter.WriteNoStore(w, CSRFResponse{CSRFToken: token})
}

// PostHandler stores a refresh token the caller already holds.
func (h *SessionHandlers) PostHandler(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r) {
		return
	}

	var req SignInRequest
	if err := jsonwriter.DecodeRequest(r, &req); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	if req.RefreshToken == "" {
		jsonwriter.WriteBadRequest(w, "refresh_token is required")
		return
	}

	email := emailutil.Normalize(req.Email)
	if email != "" && !emailutil.Valid(email) {
		jsonwriter.WriteBadRequest(w, "email is not a valid address")
		return
	}

	user := session.User{Email: email, RefreshToken: req.RefreshToken}
	if err := h.sessions.Issue(w, user); err != nil {
		log.LogErrorWithFields("session", "Failed to issue session cookie", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to store session")
		return
	}

	log.LogInfoWithFields("session", "Session stored", map[string]any{
		"email_domain": emailutil.ExtractDomain(email),
		"token":        crypto.Fingerprint(user.RefreshToken),
		"request_id":   RequestID(r.Context()),
	})
	_ = jsonwriter.WriteNoStore(w, SessionResponse{User: &user})
}

// DeleteHandler signs the origin out.
func (h *SessionHandlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !h.checkCSRF(w, r) {
		return
	}
	h.sessions.Clear(w)
	log.LogInfoWithFields("session", "Session cleared", map[string]any{
		"request_id": RequestID(r.Context()),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandlers) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	cookieValue, _ := cookie.GetCSRF(r)
	if !h.csrf.ValidatePair(cookieValue, r.Header.Get(CSRFHeader)) {
		log.LogWarnWithFields("session", "CSRF validation failed", map[string]any{
			"method":     r.Method,
			"request_id": RequestID(r.Context()),
		})
		jsonwriter.WriteForbidden(w, "invalid CSRF token")
		return false
	}
	return true
}
