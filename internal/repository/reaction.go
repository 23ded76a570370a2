package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/model"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Toggle flips the (message, party, emoji) reaction: present -> removed,
// absent -> added. The delete and insert run in one transaction keyed by the
// reaction's primary key, so concurrent toggles on the same message never
// lose each other's updates. Returns whether the reaction is now present.
func (r *ReactionRepository) Toggle(ctx context.Context, messageID, partyID, emoji string) (bool, error) {
	defer logger.DeferLogDuration("reaction.Toggle", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND party_id = $2 AND emoji = $3`,
		messageID, partyID, emoji,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle delete: %w", err)
	}
	added := false
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO message_reactions (message_id, party_id, emoji, created_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			messageID, partyID, emoji, time.Now().UTC(),
		)
		if err != nil {
			return false, fmt.Errorf("reactionRepo.Toggle insert: %w", err)
		}
		added = true
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("reactionRepo.Toggle commit: %w", err)
	}
	return added, nil
}

func (r *ReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, party_id, emoji, created_at
		 FROM message_reactions WHERE message_id = $1
		 ORDER BY created_at`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage query: %w", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.PartyID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByMessage scan: %w", err)
		}
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage rows: %w", err)
	}
	return reactions, nil
}

// ListByMessages returns reactions for a batch of messages keyed by message
// id, so conversation fetches avoid one query per message.
func (r *ReactionRepository) ListByMessages(ctx context.Context, messageIDs []string) (map[string][]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessages", time.Now())()
	if len(messageIDs) == 0 {
		return map[string][]model.Reaction{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, party_id, emoji, created_at
		 FROM message_reactions WHERE message_id = ANY($1)
		 ORDER BY created_at`, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessages query: %w", err)
	}
	defer rows.Close()

	byMessage := make(map[string][]model.Reaction, len(messageIDs))
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.PartyID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByMessages scan: %w", err)
		}
		byMessage[rc.MessageID] = append(byMessage[rc.MessageID], rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessages rows: %w", err)
	}
	return byMessage, nil
}
