package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prudhvinik1/crmsync/internal/services"
)

type contextKey string

const contextKeyClient contextKey = "client"

// ClientFromContext returns the API client id set by AuthMiddleware.
func ClientFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyClient).(string); ok {
		return id
	}
	return ""
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*services.TokenClaims, error)
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := tokens.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyClient, claims.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type AuthHandler struct {
	tokens *services.TokenService
}

func NewAuthHandler(tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Token exchanges client credentials for a bearer token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		writeError(w, http.StatusBadRequest, "client_id and client_secret are required")
		return
	}

	resp, err := h.tokens.Issue(req.ClientID, req.ClientSecret)
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
