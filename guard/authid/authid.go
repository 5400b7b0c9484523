// Package authid extracts a user identity from incoming requests so
// security events can be attributed to accounts as well as addresses.
package authid

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds identity extraction configuration
type Config struct {
	JWTSecret     string `yaml:"jwt_secret"`     // Secret for JWT validation
	JWTHeader     string `yaml:"jwt_header"`     // Header name for JWT (default: Authorization)
	SessionCookie string `yaml:"session_cookie"` // Session cookie name (default: session_id)
}

// Extractor resolves user identifiers from JWTs or session cookies.
// A zero user id means the request is anonymous.
type Extractor struct {
	config Config
}

// NewExtractor creates a new identity extractor
func NewExtractor(config Config) *Extractor {
	if config.JWTHeader == "" {
		config.JWTHeader = "Authorization"
	}
	if config.SessionCookie == "" {
		config.SessionCookie = "session_id"
	}
	return &Extractor{config: config}
}

// UserID extracts a user identifier from the request, or "" if anonymous
func (e *Extractor) UserID(r *http.Request) string {
	// Try JWT first
	authHeader := r.Header.Get(e.config.JWTHeader)
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if user := e.parseJWT(parts[1]); user != "" {
				return user
			}
		}
	}

	// Try session cookie
	cookie, err := r.Cookie(e.config.SessionCookie)
	if err == nil && cookie.Value != "" {
		return "session:" + cookie.Value
	}

	return ""
}

func (e *Extractor) parseJWT(tokenString string) string {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(e.config.JWTSecret), nil
	})
	if err != nil {
		return ""
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		// Try common identity fields
		if username, ok := claims["username"].(string); ok {
			return username
		}
		if sub, ok := claims["sub"].(string); ok {
			return sub
		}
		if email, ok := claims["email"].(string); ok {
			return email
		}
		if userID, ok := claims["user_id"].(string); ok {
			return userID
		}
	}

	return ""
}
