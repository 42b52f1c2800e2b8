package models

import "time"

// User — учетная запись пользователя.
//
// Username и Email глобально уникальны (уникальные индексы в БД).
// PasswordHash — bcrypt-хэш; исходный пароль нигде не хранится и не логируется.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
