package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/maxed-cv/internal/apperror"
	"github.com/sakif/maxed-cv/internal/auth"
	"github.com/sakif/maxed-cv/internal/model"
	"github.com/sakif/maxed-cv/internal/service"
	"github.com/sakif/maxed-cv/internal/session"
)

// AuthHandler serves the account endpoints under /auth.
//
// HANDLER RESPONSIBILITIES:
//   - decode the JSON body and hand plain values to AuthService
//   - turn a successful credential check into a session (session.Manager)
//   - translate domain errors into HTTP responses (writeError)
//
// Everything that decides whether a request is allowed lives in the service;
// everything cookie-shaped lives in session.Manager.
type AuthHandler struct {
	svc      *service.AuthService
	sessions *session.Manager
	logger   *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, sessions *session.Manager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, sessions: sessions, logger: logger}
}

// UserResponse is the public shape of a user.
type UserResponse struct {
	ID            string                   `json:"id"`
	Email         string                   `json:"email"`
	FirstName     string                   `json:"firstName,omitempty"`
	LastName      string                   `json:"lastName,omitempty"`
	Name          string                   `json:"name,omitempty"`
	EmailVerified bool                     `json:"emailVerified"`
	Avatar        string                   `json:"avatar,omitempty"`
	Providers     []model.CredentialMethod `json:"providers,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
}

func newUserResponse(u *model.User, methods []model.CredentialMethod) *UserResponse {
	return &UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Name:          u.Name,
		EmailVerified: u.IsVerified(),
		Avatar:        u.AvatarURL,
		Providers:     methods,
		CreatedAt:     u.CreatedAt,
	}
}

// AuthResponse pairs a message with the now-logged-in user.
type AuthResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user"`
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// HandleSignup creates an account and logs it in.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "...", "firstName": "...", "lastName": "..."}
// RESPONSE: 201 {"message": "...", "user": {...}}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.svc.Signup(r.Context(), service.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(w, r, user.ID, false); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Message: "account created, please check your email to verify your address",
		User:    newUserResponse(user, nil),
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// HandleLogin checks credentials and starts a fresh session.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"email": "...", "password": "...", "rememberMe": true}
//
// SESSION FIXATION:
// Establish always issues a brand-new session id and discards whatever id
// the client arrived with, so an id planted before login is useless after.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(w, r, user.ID, req.RememberMe); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "logged in",
		User:    newUserResponse(user, nil),
	})
}

// HandleLogout ends the current session. It always succeeds from the
// client's point of view: the cookie is cleared even if Redis is down.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Destroy(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the logged-in user.
//
// HTTP: GET /auth/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, methods, err := h.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// The session outlived its user; drop it.
			h.sessions.Destroy(w, r)
			writeError(w, apperror.Unauthorized("you must be logged in"))
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user, methods))
}

// HandleDeactivate deactivates the caller's account and logs them out.
//
// HTTP: POST /auth/deactivate
// Auth: Required
func (h *AuthHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.svc.Deactivate(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	h.sessions.Destroy(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "account deactivated"})
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleVerifyEmail consumes a verification token and logs the user in.
//
// HTTP: POST /auth/verify-email
// REQUEST BODY: {"token": "..."}
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, err := h.svc.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.sessions.Establish(w, r, user.ID, false); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Message: "email verified",
		User:    newUserResponse(user, nil),
	})
}

// HandleResendVerification emails a fresh verification link.
//
// HTTP: POST /auth/resend-verification
// Auth: Required
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.svc.ResendVerification(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "verification email sent"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// forgotPasswordMessage is the only answer /auth/forgot-password gives.
const forgotPasswordMessage = "if an account exists for that email, a password reset link has been sent"

// HandleForgotPassword starts a password reset.
//
// HTTP: POST /auth/forgot-password
// REQUEST BODY: {"email": "..."}
//
// The response is identical whether or not the account exists, and even when
// the store fails: the failure is logged, not shown.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleResetPassword sets a new password from a reset token. Every session
// the user had is gone afterwards, this one included.
//
// HTTP: POST /auth/reset-password
// REQUEST BODY: {"token": "...", "password": "..."}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password has been reset, please log in"})
}
