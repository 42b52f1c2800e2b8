package handlers

import (
	"net/http"
	"time"

	"github.com/pribylovaa/go-task-tracker/internal/metrics"
	"github.com/pribylovaa/go-task-tracker/internal/models"
	"github.com/pribylovaa/go-task-tracker/internal/transport/http/httperr"
	mw "github.com/pribylovaa/go-task-tracker/internal/transport/http/middleware"
)

// RefreshTokenCookie — имя cookie с refresh-токеном.
const RefreshTokenCookie = "refresh_token"

type signupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type meResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Signup — POST /auth/signup.
// 201 {"created":"ok"}; 409 при занятом email/username; 400 при битом входе.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	if _, err := h.svc.SignupUser(r.Context(), in.Username, in.Email, in.Password); err != nil {
		metrics.AuthSignupsTotal.WithLabelValues("error").Inc()
		httperr.WriteError(w, r, err)
		return
	}

	metrics.AuthSignupsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"created": "ok"})
}

// Login — POST /auth/login.
// 200 {"success":"ok"} + две HttpOnly cookie (access/refresh);
// 401 при неизвестном email или неверном пароле — ответы неразличимы.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	tp, _, err := h.svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		metrics.AuthLoginsTotal.WithLabelValues("error").Inc()
		httperr.WriteError(w, r, err)
		return
	}

	setAuthCookies(w, tp)
	metrics.AuthLoginsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
}

// Refresh — POST /auth/refresh.
// Ротация: предъявленный refresh-токен отзывается, выпускается новая пара,
// обе cookie переустанавливаются. 401 при отсутствии/невалидности токена.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	plain, ok := refreshTokenFromCookie(r)
	if !ok {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	tp, _, err := h.svc.RefreshSession(r.Context(), plain)
	if err != nil {
		metrics.AuthRefreshTotal.WithLabelValues("error").Inc()
		httperr.WriteError(w, r, err)
		return
	}

	setAuthCookies(w, tp)
	metrics.AuthRefreshTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
}

// Logout — POST /auth/logout.
// Отзывает refresh-токен и сбрасывает обе cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	plain, ok := refreshTokenFromCookie(r)
	if !ok {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	if err := h.svc.Logout(r.Context(), plain); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"success": "ok"})
}

// Me — GET /auth/me (за Auth-мидлваром).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserIDFrom(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrInvalidArgument)
		return
	}

	user, err := h.svc.CurrentUser(r.Context(), userID)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

func refreshTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	return c.Value, true
}

// setAuthCookies устанавливает обе cookie; Max-Age выводится из времени
// истечения соответствующего токена — единый источник истины, без
// продублированных констант.
func setAuthCookies(w http.ResponseWriter, tp *models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     mw.AccessTokenCookie,
		Value:    tp.AccessToken,
		Path:     "/",
		MaxAge:   cookieMaxAge(tp.AccessExpiresAt),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    tp.RefreshToken,
		Path:     "/",
		MaxAge:   cookieMaxAge(tp.RefreshExpiresAt),
		HttpOnly: true,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     mw.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func cookieMaxAge(expiresAt time.Time) int {
	return int(time.Until(expiresAt).Round(time.Second).Seconds())
}
