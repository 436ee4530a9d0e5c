package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roman-kulish/altitude-hold/internal/operator"
)

const tokenLifetime = 12 * time.Hour

// IssueToken signs an operator token for subject with the configured secret
func IssueToken(config *Config, subject string) (string, error) {
	verifier, err := operator.NewVerifier(config.Operator.Secret)
	if err != nil {
		return "", fmt.Errorf("operator secret: %w", err)
	}

	now := time.Now()
	return verifier.Sign(operator.Claims{
		Scopes: []string{operator.ScopeRead, operator.ScopeControl},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
}
