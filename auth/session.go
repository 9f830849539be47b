package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// TokenFlavor which of the two session credentials a cookie carries
type TokenFlavor string

const (
	// AccessToken short-lived credential for per-request checks
	AccessToken TokenFlavor = "access_token"
	// RefreshToken longer-lived credential renewing access and authorizing mutations
	RefreshToken TokenFlavor = "refresh_token"
)

// AuthStatus outcome class of a credential check
type AuthStatus int

const (
	// StatusOK the credential is authentic and current
	StatusOK AuthStatus = iota
	// StatusExpired the credential is authentic but past its expiry
	StatusExpired
	// StatusInvalid the credential is garbage or carries a bad signature
	StatusInvalid
	// StatusMissing no credential was presented
	StatusMissing
)

// String toString function for AuthStatus
func (s AuthStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExpired:
		return "expired"
	case StatusInvalid:
		return "invalid"
	case StatusMissing:
		return "missing"
	}
	return "unknown"
}

// AuthResult result of checking a session credential.
//
// The router layer maps each variant to a response instead of treating auth
// failure as exceptional control flow.
type AuthResult struct {
	// Status the outcome class
	Status AuthStatus
	// Identity the decoded subject, set when Status is StatusOK or StatusExpired
	Identity Identity
}

// SessionGate reads and writes session credentials on HTTP exchanges
type SessionGate interface {
	// CookieName the cookie name for a credential flavor
	CookieName(flavor TokenFlavor) string
	// Check classify the credential of the given flavor on the request
	Check(r *http.Request, flavor TokenFlavor) AuthResult
	// SetSessionCookies attach the credential pair as secure cookies
	SetSessionCookies(w http.ResponseWriter, access, refresh string)
	// ClearSessionCookies delete both session cookies
	ClearSessionCookies(w http.ResponseWriter)
}

// sessionGateImpl implements SessionGate
type sessionGateImpl struct {
	domain string
	issuer TokenIssuer
}

// GetSessionGate define a SessionGate for a cookie domain
func GetSessionGate(domain string, issuer TokenIssuer) (SessionGate, error) {
	if domain == "" {
		return nil, errors.New("session gate needs a cookie domain")
	}
	return &sessionGateImpl{domain: domain, issuer: issuer}, nil
}

// CookieName the cookie name for a credential flavor
func (g *sessionGateImpl) CookieName(flavor TokenFlavor) string {
	return fmt.Sprintf("_%s_%s", g.domain, flavor)
}

// Check classify the credential of the given flavor on the request
func (g *sessionGateImpl) Check(r *http.Request, flavor TokenFlavor) AuthResult {
	cookie, err := r.Cookie(g.CookieName(flavor))
	if err != nil || cookie.Value == "" {
		return AuthResult{Status: StatusMissing}
	}
	expired, identity, err := g.issuer.Verify(cookie.Value)
	if err != nil {
		return AuthResult{Status: StatusInvalid}
	}
	if expired {
		return AuthResult{Status: StatusExpired, Identity: identity}
	}
	return AuthResult{Status: StatusOK, Identity: identity}
}

// SetSessionCookies attach the credential pair as secure cookies
func (g *sessionGateImpl) SetSessionCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, g.sessionCookie(AccessToken, access, int(g.issuer.AccessTTL().Seconds())))
	http.SetCookie(w, g.sessionCookie(RefreshToken, refresh, int(g.issuer.RefreshTTL().Seconds())))
}

// ClearSessionCookies delete both session cookies
func (g *sessionGateImpl) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, g.sessionCookie(AccessToken, "", -1))
	http.SetCookie(w, g.sessionCookie(RefreshToken, "", -1))
}

// sessionCookie build one HTTP-only strict-site session cookie
func (g *sessionGateImpl) sessionCookie(
	flavor TokenFlavor, value string, maxAge int,
) *http.Cookie {
	return &http.Cookie{
		Name:     g.CookieName(flavor),
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
