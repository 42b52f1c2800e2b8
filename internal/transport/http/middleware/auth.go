package middleware

import (
	"context"
	"net/http"

	"github.com/pribylovaa/go-task-tracker/internal/service"
	"github.com/pribylovaa/go-task-tracker/internal/transport/http/httperr"
)

// AccessTokenCookie — имя cookie с access-токеном.
const AccessTokenCookie = "access_token"

// Authenticator проверяет access-токен и возвращает id пользователя.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (int64, error)
}

// Auth защищает маршрут: читает access-токен из cookie, проверяет его
// и кладёт id пользователя в контекст по ключу CtxUserID.
// Отсутствующая/невалидная/просроченная cookie -> 401.
func Auth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(AccessTokenCookie)
			if err != nil || c.Value == "" {
				httperr.WriteError(w, r, service.ErrInvalidToken)
				return
			}

			userID, err := a.Authenticate(r.Context(), c.Value)
			if err != nil {
				httperr.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFrom достаёт id пользователя, положенный Auth.
func UserIDFrom(ctx context.Context) (int64, bool) {
	v := ctx.Value(CtxUserID)
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	return id, ok
}
