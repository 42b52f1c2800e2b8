package postgres

import (
	"context"
	"fmt"

	"github.com/pribylovaa/go-task-tracker/internal/models"
)

// SaveActivity добавляет запись в журнал действий.
func (s *Storage) SaveActivity(ctx context.Context, entry *models.ActivityLog) error {
	const op = "storage.postgres.SaveActivity"

	query := `
        INSERT INTO activity_logs(user_id, action, target_type, target_id, ts)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `

	err := s.db.QueryRow(ctx, query,
		entry.UserID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Timestamp,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
