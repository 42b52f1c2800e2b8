package models

import "time"

// TokenPair — пара токенов, выдаваемая при логине/обновлении сессии.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, запись о котором хранится на сервере
//     и который можно отозвать;
//   - AccessExpiresAt/RefreshExpiresAt — моменты истечения (UTC); время жизни
//     cookie выводится из них, а не дублируется константой.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
