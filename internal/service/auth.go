package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-task-tracker/internal/models"
	"github.com/pribylovaa/go-task-tracker/internal/pkg/log"
	"github.com/pribylovaa/go-task-tracker/internal/pkg/redact"
	"github.com/pribylovaa/go-task-tracker/internal/storage"
)

// SignupUser регистрирует нового пользователя.
//
// Последовательность: проверка занятости email -> проверка занятости username ->
// bcrypt-хэш пароля -> вставка. Предварительные проверки — ранний выход;
// гарантию уникальности дают индексы БД (гонка конкурентных регистраций
// возвращается как ErrUserExists с тем же HTTP 409).
func (s *Service) SignupUser(ctx context.Context, username, email, password string) (*models.User, error) {
	const op = "service.auth.SignupUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyUsername)
	}

	if len(password) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		log.From(ctx).Warn("signup_email_taken",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByUsername(ctx, username)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		Username:     username,
		Email:        normEmail,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.recordActivity(ctx, user.ID, "signup")

	return user, nil
}

// LoginUser выполняет вход по email+пароль и выпускает пару токенов.
// Неизвестный email и неверный пароль неразличимы для клиента.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, int64, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Warn("login_failed",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
			)
			return nil, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		log.From(ctx).Warn("login_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, 0, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	tp, err := s.issueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	s.recordActivity(ctx, user.ID, "login")

	return tp, user.ID, nil
}

// RefreshSession обновляет пару токенов по refresh-токену с ротацией:
// предъявленный токен отзывается, взамен выпускается новая пара.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (*models.TokenPair, int64, error) {
	const op = "service.auth.RefreshSession"

	token, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.storage.RevokeRefreshTokenIfActive(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	if !revoked {
		return nil, 0, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	s.markRevokedInCache(ctx, refreshToken)

	tp, err := s.issueTokenPair(ctx, token.UserID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return tp, token.UserID, nil
}

// Logout отзывает refresh-токен; повторный logout тем же токеном — ошибка.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	userID, err := s.decodeToken(refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	revoked, err := s.storage.RevokeRefreshTokenIfActive(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}
	if !revoked {
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	s.markRevokedInCache(ctx, refreshToken)
	s.recordActivity(ctx, userID, "logout")

	return nil
}

// Authenticate проверяет access-токен и возвращает id пользователя.
// Проверка чисто криптографическая, без похода в хранилище.
func (s *Service) Authenticate(_ context.Context, accessToken string) (int64, error) {
	const op = "service.auth.Authenticate"

	userID, err := s.decodeToken(accessToken)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return userID, nil
}

// CurrentUser возвращает учетную запись по id из проверенного access-токена.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "service.auth.CurrentUser"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
// Соль генерируется на каждый вызов, хэши одного пароля у разных
// пользователей не совпадают.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
// Некорректный формат хэша — тоже false, без паники и без ошибки наружу.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}
