package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/splot/infrastructure/logging"
)

// jwtClaims is the subset of claims the management API cares about: who is
// calling, and whether they hold the admin role required for mutating a
// thing's Pairing/Rule/Timer configs.
type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuthMiddleware verifies an HS256 bearer token on every request except
// the read-only health/metrics surface, populating the request context with
// the caller's subject and role the same way infrastructure/httputil's
// GetUserID/GetUserRole already expect (spec §7 "technology" callers get a
// 502, not a 401 — authentication failures here are a distinct 401/403
// class raised before the automation engine is ever reached).
type JWTAuthMiddleware struct {
	secret    []byte
	adminRole string
	public    map[string]struct{}
}

// NewJWTAuthMiddleware builds a middleware that rejects unauthenticated
// requests to any path not listed in publicPaths. A nil or empty secret
// disables verification entirely (see AuthConfig.Secret).
func NewJWTAuthMiddleware(secret, adminRole string, publicPaths ...string) *JWTAuthMiddleware {
	if adminRole == "" {
		adminRole = "admin"
	}
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return &JWTAuthMiddleware{secret: []byte(secret), adminRole: adminRole, public: public}
}

// Handler wraps next, verifying a Bearer token on every non-public request.
func (m *JWTAuthMiddleware) Handler(next http.Handler) http.Handler {
	if len(m.secret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.public[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			unauthorizedJSON(w)
			return
		}

		claims := &jwtClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !parsed.Valid {
			unauthorizedJSON(w)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.Subject)
		ctx = logging.WithRole(ctx, claims.Role)

		if mutatesState(r) && strings.ToLower(claims.Role) != strings.ToLower(m.adminRole) {
			forbiddenJSON(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func mutatesState(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.Fields(strings.TrimSpace(r.Header.Get("Authorization")))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func unauthorizedJSON(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprint(w, `{"error":"unauthorized"}`)
}

func forbiddenJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, `{"error":"forbidden: admin role required"}`)
}
