package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type TokenCookieSecureMode int

const (
	// TokenCookieSecureAlways marks cookies Secure unconditionally. This is
	// the default; browsers must never replay tokens over plain HTTP.
	TokenCookieSecureAlways TokenCookieSecureMode = iota
	// TokenCookieSecureAuto follows the request scheme, for local development.
	TokenCookieSecureAuto
)

type TokenCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode TokenCookieSecureMode
}

func DefaultTokenCookiePolicy() TokenCookiePolicy {
	return TokenCookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: TokenCookieSecureAlways,
	}
}

func (p TokenCookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == TokenCookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func (h *Handler) tokenCookiePolicy() TokenCookiePolicy {
	policy := h.CookiePolicy
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, token string, ttl time.Duration, policy TokenCookiePolicy) {
	if token == "" {
		return
	}
	expires := time.Now().Add(ttl).UTC()
	maxAge := int(ttl.Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, accessToken, refreshToken string) {
	policy := h.tokenCookiePolicy()
	setTokenCookie(w, r, accessTokenCookie, accessToken, h.Tokens.AccessTTL(), policy)
	setTokenCookie(w, r, refreshTokenCookie, refreshToken, h.Tokens.RefreshTTL(), policy)
}

func clearTokenCookie(w http.ResponseWriter, r *http.Request, name string, policy TokenCookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.tokenCookiePolicy()
	clearTokenCookie(w, r, accessTokenCookie, policy)
	clearTokenCookie(w, r, refreshTokenCookie, policy)
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
