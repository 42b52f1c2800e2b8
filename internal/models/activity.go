package models

import "time"

// ActivityLog — запись журнала действий пользователя.
// TargetType: project/task/comment/user.
type ActivityLog struct {
	ID         int64
	UserID     int64
	Action     string
	TargetType string
	TargetID   int64
	Timestamp  time.Time
}
