package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"sparehub.org/internal/audit"
	"sparehub.org/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      auth.Profile `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

const forgotPasswordMessage = "if the email is registered, a reset link has been sent"

func (a *API) registerAuth(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/register", a.register)
		r.Post("/forgot-password", a.forgotPassword)
		r.Post("/reset-password", a.resetPassword)
		r.With(a.authenticate).Post("/change-password", a.changePassword)
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrCorruptCredential) {
			_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, logrus.Fields{"email": req.Email})
		}
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	profile, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/users/"+profile.ID)
	writeJSON(w, http.StatusCreated, profile)
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	err := a.auth.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusBadRequest, "current password is incorrect")
		return
	default:
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordChanged, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "password changed"})
}

func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	if err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"message": forgotPasswordMessage})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeOr400(w, r, &req) {
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordReset, nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "password has been reset"})
}
