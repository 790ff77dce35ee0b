package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wardgate/wardgate/pkg/config"
)

const adminTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type (
	// Manager mints and checks the bearer tokens accepted by the
	// management API. Tokens are HMAC-signed with the admin secret.
	Manager interface {
		CreateToken() (string, error)
		ValidateToken(tokenString string) error
	}
	manager struct {
		config *config.ServerConfig
	}
)

func NewJwtManager(config *config.ServerConfig) Manager {
	return &manager{
		config: config,
	}
}

type Claims struct {
	jwt.RegisteredClaims
}

func (m *manager) CreateToken() (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "wardgate",
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.AdminSecret))
}

func (m *manager) ValidateToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(m.config.AdminSecret), nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
