package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dom/neighbor-group/internal/api/middleware"
	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	authService *service.AuthService
	cfg         *config.Config
	log         *logrus.Logger
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg, log: log}
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	// Email accepts either an email address or a user slug.
	Email    string `json:"email"`
	Password string `json:"password"`
	Redirect string `json:"redirect"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordVerifyRequest struct {
	Code string `json:"code"`
}

type PasswordChangeRequest struct {
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Redirect  string       `json:"redirect"`
}

type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Slug  string `json:"slug"`
}

type ResetStartedResponse struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

type ResetUndeliverableResponse struct {
	ErrorResponse
	TicketID string `json:"ticketId"`
}

func newUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Slug:  user.Slug,
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.CurrentUser(r.Context()); ok {
		writeError(w, http.StatusConflict, "ALREADY_SIGNED_IN", "You are already signed in.")
		return
	}

	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	result, err := h.authService.Signup(r.Context(), middleware.Meta(r), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, "Signup", err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	writeJSON(w, http.StatusCreated, AuthResponse{
		User:      newUserResponse(result.User),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Redirect:  "/",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.CurrentUser(r.Context()); ok {
		writeError(w, http.StatusConflict, "ALREADY_SIGNED_IN", "You are already signed in.")
		return
	}

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	result, err := h.authService.Login(r.Context(), middleware.Meta(r), req.Email, req.Password)
	if err != nil {
		h.fail(w, "Login", err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	writeJSON(w, http.StatusOK, AuthResponse{
		User:      newUserResponse(result.User),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Redirect:  SafeRedirect(req.Redirect),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	session, _ := middleware.CurrentSession(r.Context())

	if err := h.authService.Logout(r.Context(), middleware.Meta(r), user, session); err != nil {
		h.fail(w, "Logout", err)
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"redirect": "/login"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Please log in first.")
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *AuthHandler) StartPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	ticketID, err := h.authService.StartPasswordReset(r.Context(), middleware.Meta(r), req.Email)
	if err != nil {
		var undeliverable *domain.UndeliverableResetError
		switch {
		case errors.As(err, &undeliverable):
			writeJSON(w, http.StatusServiceUnavailable, ResetUndeliverableResponse{
				ErrorResponse: ErrorResponse{
					Error: "Sorry, we could not send your password reset code. Please try again later.",
					Code:  "RESET_UNDELIVERABLE",
				},
				TicketID: undeliverable.TicketID,
			})
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusBadRequest, "UNKNOWN_EMAIL", "Sorry, no account uses that email address.")
		default:
			h.fail(w, "StartPasswordReset", err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ResetStartedResponse{
		TicketID: ticketID,
		Message:  "Please check your email for a verification code.",
	})
}

func (h *AuthHandler) VerifyPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	result, err := h.authService.VerifyPasswordReset(r.Context(), middleware.Meta(r), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.fail(w, "VerifyPasswordReset", err)
		return
	}

	h.setSessionCookie(w, result.Token, result.ExpiresAt)
	writeJSON(w, http.StatusOK, AuthResponse{
		User:      newUserResponse(result.User),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Redirect:  "/password/reset",
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	user, _ := middleware.CurrentUser(r.Context())
	err := h.authService.ChangePassword(r.Context(), middleware.Meta(r), user, req.Password, req.Password2)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Sorry, your password cannot be reset.")
			return
		}
		h.fail(w, "ChangePassword", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Success! Your password has been reset."})
}

func (h *AuthHandler) fail(w http.ResponseWriter, op string, err error) {
	if status := respondError(w, err); status >= http.StatusInternalServerError {
		h.log.WithError(err).Errorf("[AuthHandler.%s] unexpected error", op)
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SafeRedirect keeps post-login redirects on this site. Anything other
// than a local absolute path becomes "/".
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}
