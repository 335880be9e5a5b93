package dashboard

import (
	"errors"
	"net/http"
	"strings"

	"icering/internal/auth"
)

// dashboardAuthenticator validates /dashboard/ws upgrade requests, grounded
// on the teacher's websocket_auth.go hmacWebsocketAuthenticator: a signed
// HS256 token presented via the auth_token query param or the
// X-Auth-Token header, with the token's subject becoming the client id.
// A Hub built with an empty AdminSecret gets an authenticator with no
// verifier, which admits every request under its remote address, matching
// the teacher's dev-convenience default.
type dashboardAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

func newDashboardAuthenticator(secret string) *dashboardAuthenticator {
	if strings.TrimSpace(secret) == "" {
		return &dashboardAuthenticator{}
	}
	verifier, err := auth.NewHMACTokenVerifier(secret, defaultClockSkew)
	if err != nil {
		return &dashboardAuthenticator{}
	}
	return &dashboardAuthenticator{verifier: verifier}
}

// authenticate returns the client id for the request, or an error if the
// presented token is missing, malformed, or expired.
func (a *dashboardAuthenticator) authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return r.RemoteAddr, nil
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return r.RemoteAddr, nil
	}
	return claims.Subject, nil
}
