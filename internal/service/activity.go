package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-task-tracker/internal/models"
	"github.com/pribylovaa/go-task-tracker/internal/pkg/log"
)

// recordActivity пишет запись в журнал действий (best-effort):
// отказ журнала логируется и не ломает основной сценарий.
func (s *Service) recordActivity(ctx context.Context, userID int64, action string) {
	const op = "service.activity.recordActivity"

	entry := &models.ActivityLog{
		UserID:     userID,
		Action:     action,
		TargetType: "user",
		TargetID:   userID,
		Timestamp:  time.Now().UTC(),
	}

	if err := s.storage.SaveActivity(ctx, entry); err != nil {
		log.From(ctx).Warn("activity_log_failed",
			slog.String("op", op),
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
	}
}
