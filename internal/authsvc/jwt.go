package authsvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload embedded in an issued access token.
type Claims struct {
	jwt.RegisteredClaims
	PlayerID string `json:"pid"`
	Username string `json:"username"`
}

// TokenIssuer signs and verifies JWT access tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
	issuer     string
}

// NewTokenIssuer creates a token issuer with the given HMAC secret and
// expiration.
func NewTokenIssuer(secret []byte, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, expiration: expiration, issuer: "hokm"}
}

// Issue signs a new access token for the given player.
func (t *TokenIssuer) Issue(playerID uuid.UUID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
		},
		PlayerID: playerID.String(),
		Username: username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("authsvc: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token's signature and expiry and returns its claims.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authsvc: unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authsvc: parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("authsvc: invalid token")
	}
	return claims, nil
}
