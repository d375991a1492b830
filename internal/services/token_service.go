package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/crmsync/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid client id or secret")
	ErrInvalidToken       = errors.New("invalid token")
)

// TokenService issues and verifies the bearer tokens of the sync API. There
// is a single API client, configured by id and bcrypt secret hash.
type TokenService struct {
	clientID   string
	secretHash string
	jwtSecret  string
	jwtExpiry  time.Duration
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TokenClaims struct {
	ClientID string
	TokenID  string
}

func NewTokenService(clientID, secretHash, jwtSecret string, jwtExpiry time.Duration) *TokenService {
	return &TokenService{
		clientID:   clientID,
		secretHash: secretHash,
		jwtSecret:  jwtSecret,
		jwtExpiry:  jwtExpiry,
	}
}

func (s *TokenService) Issue(clientID, secret string) (*TokenResponse, error) {
	if clientID != s.clientID || !utils.CheckSecret(s.secretHash, secret) {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.jwtExpiry)
	token, err := s.generateToken(clientID, uuid.New().String(), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *TokenService) generateToken(clientID, tokenID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": clientID,
		"jti": tokenID,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *TokenService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	clientID, ok := claims["sub"].(string)
	if !ok || clientID != s.clientID {
		return nil, ErrInvalidToken
	}

	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		ClientID: clientID,
		TokenID:  tokenID,
	}, nil
}
