package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/auth"
	"github.com/toastysunday/api/internal/database"
	"github.com/toastysunday/api/internal/middleware"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 5

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// AccountStore defines the database methods needed by auth handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AccountStore interface {
	CreateAccount(ctx context.Context, arg database.CreateAccountParams) (database.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (database.Account, error)
}

// AuthHandler handles account and token endpoints.
type AuthHandler struct {
	store     AccountStore
	jwtSecret string
	admins    auth.Admins
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store AccountStore, jwtSecret string, admins auth.Admins) *AuthHandler {
	return &AuthHandler{store: store, jwtSecret: jwtSecret, admins: admins}
}

// RegisterRoutes registers the public auth endpoints on the given Chi router.
// Me needs an authenticated router and is mounted separately.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Get("/auth/exists/{username}", h.Exists)
}

// --- Request / Response types ---

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type userResponse struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// --- Handlers ---

// Register creates an account and signs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !usernamePattern.MatchString(req.Username) {
		writeError(w, http.StatusBadRequest, "username must be 3-30 letters, digits, '_' or '-'")
		return
	}
	if auth.Reserved(req.Username) {
		writeError(w, http.StatusBadRequest, "username is reserved")
		return
	}
	if !strongPassword(req.Password) {
		writeError(w, http.StatusBadRequest, "password must be at least 5 characters with upper and lower case letters, a digit and a symbol")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("hash password")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	account, err := h.store.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		PasswordHash: string(hash),
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		logrus.WithError(err).WithField("username", req.Username).Error("create account")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logrus.WithField("username", account.Username).Info("account registered")
	h.respondWithTokens(w, http.StatusCreated, account.Username)
}

// Login handles username + password authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := h.store.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logrus.WithError(err).Error("get account")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithTokens(w, http.StatusOK, account.Username)
}

// Refresh exchanges a valid refresh token for a new access + refresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	username, err := auth.ValidateRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if _, err := h.store.GetAccountByUsername(r.Context(), username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "user not found")
			return
		}
		logrus.WithError(err).Error("get account")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithTokens(w, http.StatusOK, username)
}

// Exists reports whether an account with the given username exists, so the
// sign-up form can flag a taken name early.
func (h *AuthHandler) Exists(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !usernamePattern.MatchString(username) {
		writeJSON(w, http.StatusOK, existsResponse{Exists: false})
		return
	}

	_, err := h.store.GetAccountByUsername(r.Context(), username)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, existsResponse{Exists: true})
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusOK, existsResponse{Exists: false})
	default:
		logrus.WithError(err).Error("get account")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Me reports who the caller is and whether they are an admin.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Username: claims.Username,
		Admin:    h.admins.Contains(claims.Username),
	})
}

// --- Helpers ---

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, status int, username string) {
	accessToken, err := auth.GenerateToken(h.jwtSecret, username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, status, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: userResponse{
			Username: username,
			Admin:    h.admins.Contains(username),
		},
	})
}

func strongPassword(p string) bool {
	if len(p) < minPasswordLength {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, c := range p {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
