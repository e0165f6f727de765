package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"hostelcare/internal/session"

	"github.com/golang-jwt/jwt/v5"
)

type AuthConfig struct {
	Secret        string
	AllowedDomain string
}

var errTokenClaims = errors.New("token is missing sub or email")

// AuthMiddleware accepts HS256 bearer tokens carrying sub and email claims and
// puts the caller on the request context.
func AuthMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		user, err := parseToken(token, cfg.Secret)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if !allowedEmail(user.Email, cfg.AllowedDomain) {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "email_domain_not_allowed", "this email domain is not allowed")
			return
		}
		noteUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(session.WithUser(r.Context(), user)))
	})
}

func parseToken(raw, secret string) (session.User, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return session.User{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return session.User{}, errTokenClaims
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	sub = strings.TrimSpace(sub)
	email = strings.TrimSpace(email)
	if sub == "" || email == "" {
		return session.User{}, errTokenClaims
	}
	return session.User{ID: sub, Email: email}, nil
}

func allowedEmail(email, domain string) bool {
	if domain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+domain)
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
