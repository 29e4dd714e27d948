package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	service    AuthService
	refreshTTL time.Duration
	logger     *slog.Logger
}

func NewAuthHandler(service AuthService, cfg *config.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:    service,
		refreshTTL: cfg.JWT.RefreshTTL,
		logger:     logger,
	}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var body SignupRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Signup(r.Context(), body); err != nil {
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, MessageResponse{
		Message: "Registration successful. Please check your email to activate your account.",
	})
}

// Login handles POST /auth/login. The refresh token is set as an HttpOnly
// secure cookie; only the access token appears in the body.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	accessToken, refreshToken, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		api.RespondError(w, r, err)
		return
	}

	h.setRefreshCookie(w, refreshToken)
	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), refreshTokenFromCookie(r)); err != nil {
		api.RespondError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

// Refresh handles POST /auth/refresh, rotating the refresh cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	accessToken, refreshToken, err := h.service.Refresh(r.Context(), refreshTokenFromCookie(r))
	if err != nil {
		api.RespondError(w, r, err)
		return
	}

	h.setRefreshCookie(w, refreshToken)
	api.WriteJSONResponse(w, r, http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, ok := api.CurrentUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, CurrentUserResponse{
		ID:        current.ID,
		Username:  current.Username,
		Email:     current.Email,
		AvatarURL: current.AvatarURL,
	})
}

// VerifyUser handles GET /auth/verify/{token}.
func (h *AuthHandler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.Verify(r.Context(), token); err != nil {
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, MessageResponse{
		Message: "Your email has been successfully verified. You can now log in to your account.",
	})
}

// ResendVerification handles POST /auth/verify.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var body VerifyRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ResendVerification(r.Context(), body.Email); err != nil {
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, MessageResponse{
		Message: "Please check your email to activate your account.",
	})
}

// ForgotPassword handles POST /auth/reset-password. The success message never
// reveals whether the email exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body ForgotPasswordRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, MessageResponse{
		Message: "If this email exists, we have sent password reset instructions.",
	})
}

// ResetPassword handles POST /auth/reset-password/{token}.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &body); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token := chi.URLParam(r, "token")
	if err := h.service.ResetPassword(r.Context(), token, body.Password); err != nil {
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, MessageResponse{
		Message: "Your password has been successfully changed.",
	})
}
