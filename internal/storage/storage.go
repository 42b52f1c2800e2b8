package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/go-task-tracker/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/username/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД и заполняет user.ID.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByUsername находит пользователя по имени.
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByValue находит refresh-токен по его значению.
	RefreshTokenByValue(ctx context.Context, token string) (*models.RefreshToken, error)
	// RevokeRefreshTokenIfActive пытается отозвать refresh-токен, если он ещё не отозван.
	// (true, nil) — токен был активен и отозван сейчас;
	// (false, nil) — токен существует, но уже отозван;
	// (false, ErrNotFound) — токен не найден.
	RevokeRefreshTokenIfActive(ctx context.Context, token string) (bool, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// ActivityStorage выполняет операции над журналом действий.
type ActivityStorage interface {
	// SaveActivity добавляет запись в журнал действий.
	SaveActivity(ctx context.Context, entry *models.ActivityLog) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	ActivityStorage
	Close()
}
