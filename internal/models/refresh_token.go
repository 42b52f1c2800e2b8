package models

import "time"

// RefreshToken — данные refresh-токена для управления сессиями.
//
// Token — подписанный JWT как есть; уникальность обеспечивает индекс в БД.
// На каждый успешный логин создаётся новая запись, ранее выданные токены
// остаются действительными до отзыва или истечения срока.
type RefreshToken struct {
	ID        int64
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}
