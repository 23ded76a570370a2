package identity

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

// Directory resolves party ids against one directory table owned by the
// embedding application. The table must carry id, display_name, contact and
// avatar_url columns (the case-management schema does for both clients and
// counsel).
type Directory struct {
	pool  *pgxpool.Pool
	table string
}

func NewDirectory(pool *pgxpool.Pool, table string) (*Directory, error) {
	if !validIdentifier(table) {
		return nil, fmt.Errorf("identity: invalid directory table %q", table)
	}
	return &Directory{pool: pool, table: table}, nil
}

func (d *Directory) Resolve(ctx context.Context, partyID string) (*model.PartyProfile, error) {
	defer logger.DeferLogDuration("identity.Resolve."+d.table, time.Now())()
	p := &model.PartyProfile{}
	err := d.pool.QueryRow(ctx,
		`SELECT id, display_name, COALESCE(contact, ''), COALESCE(avatar_url, '')
		 FROM `+d.table+` WHERE id = $1`, partyID,
	).Scan(&p.ID, &p.DisplayName, &p.Contact, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownParty
	}
	if err != nil {
		return nil, fmt.Errorf("identity: resolve via %s: %w", d.table, err)
	}
	return p, nil
}

// validIdentifier accepts plain SQL identifiers only; the table name is
// interpolated into queries and comes from configuration, not users.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return s[0] == '_' || s[0] >= 'a' && s[0] <= 'z'
}
