package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"coursehub/internal/microservices/http-api/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid token")

// ProviderClaims are the claims issued by the external auth provider.
type ProviderClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 tokens signed with the provider's shared secret.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(tokenString string) (*ProviderClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &ProviderClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// UserMirror records users seen in valid tokens in the local directory.
type UserMirror interface {
	EnsureUser(ctx context.Context, user *models.User) error
}

// AuthMiddleware is a Gin middleware for JWT authentication of API requests.
// On success the token subject is available as "user_id".
func AuthMiddleware(verifier *TokenVerifier, users UserMirror, logger *zap.Logger) gin.HandlerFunc {
	var seen sync.Map

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.Request)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			c.Abort()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		role := claims.Role
		if role == "" {
			role = "user"
		}

		if users != nil {
			if _, known := seen.Load(claims.Subject); !known {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
				err := users.EnsureUser(ctx, &models.User{ID: claims.Subject, Email: claims.Email, Role: role})
				cancel()
				if err != nil {
					logger.Warn("user_mirror_failed", zap.String("user_id", claims.Subject), zap.Error(err))
				} else {
					seen.Store(claims.Subject, struct{}{})
				}
			}
		}

		// Set user info in context for handlers to use
		c.Set("user_id", claims.Subject)
		c.Set("email", claims.Email)
		c.Set("role", role)

		c.Next()
	}
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter for websocket upgrades.
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, true
	}
	return "", false
}

// RequireRole checks if the user has the specified role
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, ok := c.Get("role")
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found in token"})
			c.Abort()
			return
		}

		if userRole != requiredRole {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "Insufficient permissions",
				"required": requiredRole,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin is a convenience function for requiring admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole("admin")
}
