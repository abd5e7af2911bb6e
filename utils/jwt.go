package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "QRMenu"

var JWTSecret = []byte("TestSecretKeyAUTH1945")

// SetJWTSecret dipanggil dari main setelah config dibaca
func SetJWTSecret(secret string) {
	if secret == "" {
		InfoLogger.Warn("JWT_SECRET not set, using default development secret")
		return
	}
	JWTSecret = []byte(secret)
}

// CustomClaims -> claims token staff (admin, kitchen, waiter)
type CustomClaims struct {
	UserID       uint   `json:"user_id"`
	Role         string `json:"role"`
	RestaurantID uint   `json:"restaurant_id"`
	jwt.RegisteredClaims
}

// GenerateToken menerbitkan token staff. Login staff sendiri ada di luar service ini,
// fungsi ini dipakai oleh layanan auth dan oleh test.
func GenerateToken(userID uint, role string, restaurantID uint) (string, error) {
	claims := &CustomClaims{
		UserID:       userID,
		Role:         role,
		RestaurantID: restaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
			Subject:   "staff",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(JWTSecret)
	if err != nil {
		ErrorLogger.Errorf("Error generating token: %v", err)
		return "", err
	}
	return tokenString, nil
}

func ParseToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || claims.Subject != "staff" {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == 0 || claims.RestaurantID == 0 {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
