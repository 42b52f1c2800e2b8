package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/go-task-tracker/internal/cache"
	"github.com/pribylovaa/go-task-tracker/internal/models"
	"github.com/pribylovaa/go-task-tracker/internal/pkg/log"
	"github.com/pribylovaa/go-task-tracker/internal/storage"
)

// tokenClaims — полезная нагрузка подписанного токена: {id, exp}.
// Для refresh-токенов дополнительно заполняется jti (RegisteredClaims.ID):
// без него два логина в одну секунду дали бы байт-в-байт одинаковые токены
// и нарушение уникального индекса в реестре.
type tokenClaims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// mintToken выпускает подписанный HS256-токен с требуемым временем жизни.
func (s *Service) mintToken(userID int64, now time.Time, ttl time.Duration, jti string) (string, error) {
	const op = "service.token.mintToken"

	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// decodeToken проверяет подпись и срок действия токена и возвращает id пользователя.
func (s *Service) decodeToken(tokenStr string) (int64, error) {
	const op = "service.token.decodeToken"

	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims.UserID, nil
}

// issueTokenPair выпускает новую пару access+refresh токенов;
// refresh-токен регистрируется в хранилище (одна запись на выпуск).
func (s *Service) issueTokenPair(ctx context.Context, userID int64) (*models.TokenPair, error) {
	const op = "service.token.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.mintToken(userID, now, s.cfg.AccessTokenTTL, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.mintAndStoreRefreshToken(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

// mintAndStoreRefreshToken выпускает refresh-токен и сохраняет его в реестре.
// Коллизия значения (уникальный индекс) крайне маловероятна из-за jti,
// но на этот случай генерация повторяется.
func (s *Service) mintAndStoreRefreshToken(ctx context.Context, userID int64, now time.Time) (string, error) {
	const (
		op          = "service.token.mintAndStoreRefreshToken"
		maxAttempts = 3
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		plain, err := s.mintToken(userID, now, s.cfg.RefreshTokenTTL, uuid.NewString())
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}

		token := &models.RefreshToken{
			Token:     plain,
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
			Revoked:   false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		s.storeInCache(ctx, token)

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// validateRefreshToken валидирует refresh-токен: подпись и срок — статически,
// затем наличие/отзыв — по реестру (через кэш, если он сконфигурирован).
func (s *Service) validateRefreshToken(ctx context.Context, plain string) (*models.RefreshToken, error) {
	const op = "service.token.validateRefreshToken"

	lg := log.From(ctx)

	claimedUserID, err := s.decodeToken(plain)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		entry, ok, cerr := s.rcache.Get(ctx, plain)
		if cerr != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", cerr.Error()),
			)
		} else if ok {
			if entry.Revoked {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
			}
			if entry.UserID != claimedUserID {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return &models.RefreshToken{
				Token:     plain,
				UserID:    entry.UserID,
				ExpiresAt: entry.ExpiresAt,
			}, nil
		}
	}

	token, err := s.storage.RefreshTokenByValue(ctx, plain)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", strconv.FormatInt(token.UserID, 10)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if time.Now().UTC().After(token.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", strconv.FormatInt(token.UserID, 10)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if token.UserID != claimedUserID {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return token, nil
}

// storeInCache кладёт свежий refresh-токен в кэш (best-effort).
func (s *Service) storeInCache(ctx context.Context, token *models.RefreshToken) {
	if s.rcache == nil {
		return
	}

	entry := &cache.RefreshEntry{
		UserID:    token.UserID,
		Revoked:   false,
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.rcache.Set(ctx, token.Token, entry, time.Until(token.ExpiresAt)); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed", slog.String("err", err.Error()))
	}
}

// markRevokedInCache помечает токен отозванным в кэше (best-effort).
func (s *Service) markRevokedInCache(ctx context.Context, plain string) {
	if s.rcache == nil {
		return
	}

	if err := s.rcache.MarkRevoked(ctx, plain); err != nil {
		log.From(ctx).Warn("refresh_cache_revoke_failed", slog.String("err", err.Error()))
	}
}
