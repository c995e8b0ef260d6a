package repository

import (
	"context"
	"fmt"

	"github.com/uma-arai/casa25-portal/internal/common/utils"
	"github.com/uma-arai/casa25-portal/internal/model"
)

// NotificationRepository は発火した通知の履歴の永続化を担当するインターフェースです
type NotificationRepository interface {
	Record(ctx context.Context, record *model.NotificationRecord) error
	ListByGuest(ctx context.Context, guestName string, limit int) ([]model.NotificationRecord, error)
}

// NotificationRepositoryImpl は通知履歴をPostgreSQLに保存します
type NotificationRepositoryImpl struct {
	db *DB
}

// NewNotificationRepository は新しいNotificationRepositoryを作成します
func NewNotificationRepository(db *DB) *NotificationRepositoryImpl {
	return &NotificationRepositoryImpl{
		db: db,
	}
}

// EnsureSchema は通知履歴テーブルを作成します
func (r *NotificationRepositoryImpl) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS notification_history (
			id SERIAL PRIMARY KEY,
			guest_name TEXT NOT NULL,
			rule TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create notification_history: %w", err)
	}
	return nil
}

// Record は発火した通知を1件保存し、採番されたIDをrecordに設定します
func (r *NotificationRepositoryImpl) Record(ctx context.Context, record *model.NotificationRecord) error {
	ctx, seg := utils.BeginSubsegment(ctx, "NotificationRepository.Record")

	query := `
		INSERT INTO notification_history (
			guest_name, rule, message, created_at
		) VALUES (
			$1, $2, $3, $4
		)
		RETURNING id`

	err := r.db.GetContext(ctx, &record.ID, query,
		record.GuestName,
		record.Rule,
		record.Message,
		record.CreatedAt,
	)
	utils.CloseSegment(seg, err)
	if err != nil {
		return fmt.Errorf("failed to insert notification history: %w", err)
	}
	return nil
}

// ListByGuest は指定されたゲストの通知履歴を新しい順に取得します
func (r *NotificationRepositoryImpl) ListByGuest(ctx context.Context, guestName string, limit int) ([]model.NotificationRecord, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "NotificationRepository.ListByGuest")

	query := `
		SELECT id, guest_name, rule, message, created_at
		FROM notification_history
		WHERE guest_name = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, query, guestName, limit)
	if err != nil {
		utils.CloseSegment(seg, err)
		return nil, fmt.Errorf("failed to query notification history: %w", err)
	}
	defer rows.Close()

	var records []model.NotificationRecord
	for rows.Next() {
		var record model.NotificationRecord
		if err := rows.StructScan(&record); err != nil {
			utils.CloseSegment(seg, err)
			return nil, fmt.Errorf("failed to scan notification history: %w", err)
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		utils.CloseSegment(seg, err)
		return nil, fmt.Errorf("error iterating notification history: %w", err)
	}

	utils.CloseSegment(seg, nil)
	return records, nil
}
