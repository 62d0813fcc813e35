package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linkedout/avatarbackend/models"
	"github.com/linkedout/avatarbackend/repository"
)

const jwtExpirationHours = 24

type AuthHandler struct {
	UserRepo    repository.UserRepository
	ProfileRepo repository.ProfileRepository
	JWTSecret   []byte
}

func NewAuthHandler(userRepo repository.UserRepository, profileRepo repository.ProfileRepository, jwtSecret string) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, ProfileRepo: profileRepo, JWTSecret: []byte(jwtSecret)}
}

type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_payload", "Invalid request payload")
		return
	}

	user, err := h.UserRepo.GetByUsername(payload.Username)
	if err != nil {
		WriteAPIError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	if !user.CheckPassword(payload.Password) {
		WriteAPIError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		return
	}

	expirationTime := time.Now().Add(jwtExpirationHours * time.Hour)
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(user.ID),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    "avatarbackend",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.JWTSecret)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "token_error", "Failed to generate token")
		return
	}

	userForResponse := *user
	userForResponse.PasswordHash = ""

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     tokenString,
		User:      userForResponse,
		ExpiresAt: expirationTime,
	})
}

type RegisterPayload struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Register creates a new account with an empty profile attached
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_payload", "Invalid request payload: "+err.Error())
		return
	}

	if payload.Username == "" || payload.Password == "" || payload.Email == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_fields", "Username, email, and password are required")
		return
	}

	user := &models.User{
		Username: payload.Username,
		Email:    payload.Email,
	}
	if err := user.SetPassword(payload.Password); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "hash_error", "Failed to process password")
		return
	}

	if err := h.UserRepo.Create(user); err != nil {
		WriteAPIError(w, http.StatusConflict, "user_exists", "Username or email already taken")
		return
	}

	profile := &models.Profile{UserID: user.ID, DisplayName: payload.DisplayName}
	if err := h.ProfileRepo.Upsert(profile); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "profile_error", "Failed to create profile record")
		return
	}

	user.PasswordHash = ""
	user.Profile = profile
	writeJSON(w, http.StatusCreated, user)
}
