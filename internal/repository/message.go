package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/model"
)

const messageColumns = `id, sender_id, receiver_id, body, attachments, status, is_deleted, deleted_at, created_at, seq`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row, m *model.Message) error {
	return row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &m.Attachments,
		&m.Status, &m.IsDeleted, &m.DeletedAt, &m.CreatedAt, &m.Seq)
}

// Create persists a new message and fills in its store-assigned seq.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	atts := m.Attachments
	if atts == nil {
		atts = []model.Attachment{}
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, body, attachments, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		m.ID, m.SenderID, m.ReceiverID, m.Body, atts, m.Status, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListConversation returns every message between the two parties in creation
// order, seq breaking timestamp ties. Soft-deleted messages are included
// (their body is already the tombstone) to preserve conversation continuity.
func (r *MessageRepository) ListConversation(ctx context.Context, partyA, partyB string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, seq`, partyA, partyB,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListConversation query: %w", err)
	}
	return collectMessages(rows, "msgRepo.ListConversation")
}

// ListForParty returns every message the party sent or received, in creation
// order. The inbox aggregation makes a single linear pass over this.
func (r *MessageRepository) ListForParty(ctx context.Context, party string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListForParty", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE sender_id = $1 OR receiver_id = $1
		 ORDER BY created_at, seq`, party,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListForParty query: %w", err)
	}
	return collectMessages(rows, "msgRepo.ListForParty")
}

func collectMessages(rows pgx.Rows, op string) ([]model.Message, error) {
	defer rows.Close()
	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return messages, nil
}

// MarkDelivered transitions all sent messages from sender to receiver into
// delivered. A single UPDATE, so concurrent unread-count queries observe
// either the pre- or post-transition state. Idempotent.
func (r *MessageRepository) MarkDelivered(ctx context.Context, sender, receiver string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkDelivered", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET status = 'delivered'
		 WHERE sender_id = $1 AND receiver_id = $2 AND status = 'sent'`,
		sender, receiver,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkDelivered: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkRead transitions all unread messages from sender to receiver into read,
// regardless of whether they were delivered first. Idempotent.
func (r *MessageRepository) MarkRead(ctx context.Context, sender, receiver string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET status = 'read'
		 WHERE sender_id = $1 AND receiver_id = $2 AND status != 'read'`,
		sender, receiver,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkReadByIDs transitions the listed messages into read, but only those
// addressed to receiver; ids sent by the receiver or unknown are ignored.
func (r *MessageRepository) MarkReadByIDs(ctx context.Context, receiver string, ids []string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkReadByIDs", time.Now())()
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET status = 'read'
		 WHERE receiver_id = $1 AND id = ANY($2) AND status != 'read'`,
		receiver, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkReadByIDs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SoftDelete tombstones the message body and records the deletion time.
// Identity, participants, timestamp and attachments are kept; status is
// untouched (deletion and status are orthogonal).
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.pool.QueryRow(ctx,
		`UPDATE messages SET is_deleted = true, body = $2, deleted_at = $3
		 WHERE id = $1
		 RETURNING `+messageColumns, id, model.Tombstone, deletedAt), m)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	return m, nil
}

// UnreadCount counts non-deleted messages addressed to party that are not yet
// read.
func (r *MessageRepository) UnreadCount(ctx context.Context, party string) (int, error) {
	defer logger.DeferLogDuration("msg.UnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE receiver_id = $1 AND status != 'read' AND is_deleted = false`,
		party,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.UnreadCount: %w", err)
	}
	return count, nil
}
