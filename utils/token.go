package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims -> claims session token customer. Token hanya berlaku selama session di DB
// masih verified, aktif, belum expired dan TokenID-nya sama dengan jti.
type SessionClaims struct {
	SessionID    string `json:"sid"`
	TableID      uint   `json:"tid"`
	RestaurantID uint   `json:"rid"`
	jwt.RegisteredClaims
}

var ErrInvalidSessionToken = errors.New("invalid session token")

func GenerateSessionToken(sessionID string, tableID, restaurantID uint, tokenID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &SessionClaims{
		SessionID:    sessionID,
		TableID:      tableID,
		RestaurantID: restaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   "session",
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(JWTSecret)
}

// ParseSessionToken hanya memvalidasi tanda tangan dan bentuk token.
// Expiry dicek terhadap session di DB (pakai clock service), bukan di sini.
func ParseSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, ErrInvalidSessionToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject != "session" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrInvalidSessionToken
	}
	return claims, nil
}
