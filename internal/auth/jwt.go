package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimSubject = "sub"
	claimPhone   = "phone"
)

// Claims is what the app's backend asserts about the caller
type Claims struct {
	Subject string
	Phone   string
}

// GenerateToken creates a signed HS256 JWT for subject
func GenerateToken(subject, phone, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	if phone != "" {
		claims[claimPhone] = phone
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies an HS256 token and extracts its claims
func ParseToken(tokenString, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("invalid token claims")
	}
	claims := Claims{
		Subject: claimString(mapClaims, claimSubject),
		Phone:   claimString(mapClaims, claimPhone),
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("subject missing")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
