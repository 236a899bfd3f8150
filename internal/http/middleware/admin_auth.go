package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const editorClaimsKey contextKey = "editorClaims"

// Roles allowed to edit stations.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// EditorClaims are the JWT claims carried by station editors.
type EditorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminJWT enforces an HMAC-signed JWT whose role is admin or editor.
// Tokens without a role are treated as admin.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := EditorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role == "" {
				claims.Role = RoleAdmin
			}
			if claims.Role != RoleAdmin && claims.Role != RoleEditor {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), editorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EditorClaimsFromContext returns editor JWT claims if present.
func EditorClaimsFromContext(ctx context.Context) (EditorClaims, bool) {
	claims, ok := ctx.Value(editorClaimsKey).(EditorClaims)
	return claims, ok
}
