package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api"
)

// TokenCodec signs and verifies token payloads with a shared secret. It is
// stateless; persistence of issued tokens is the TokenRepo's concern.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
}

func NewTokenCodec(cfg *config.Config) *TokenCodec {
	if cfg.JWT.SecretKey == "" {
		panic("JWT secret key cannot be empty")
	}
	method := jwt.GetSigningMethod(cfg.JWT.Algorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &TokenCodec{
		secret: []byte(cfg.JWT.SecretKey),
		method: method,
		issuer: cfg.JWT.Issuer,
	}
}

// Encode signs a payload for userID. A non-positive ttl produces a token
// without an expiry claim.
func (c *TokenCodec) Encode(userID int64, tokenType api.TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &api.TokenPayload{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the payload, or nil on
// any failure: malformed input, signature mismatch, expiry passed, or a claims
// shape that does not carry a user id and token type. Callers rely on this
// nil-on-failure contract to reject bad tokens uniformly.
func (c *TokenCodec) Decode(tokenString string) *api.TokenPayload {
	claims := &api.TokenPayload{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	if claims.UserID <= 0 || claims.TokenType == "" {
		return nil
	}
	return claims
}
