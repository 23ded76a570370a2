// Package identity resolves opaque party ids to display profiles. The
// directories themselves belong to the embedding application; this package
// only reads them.
package identity

import (
	"context"
	"errors"

	"github.com/casedesk/messaging/internal/model"
)

// ErrUnknownParty is returned when a party id is absent from a directory.
// During inbox aggregation this is a filtering signal, not a failure: a
// counterpart absent from every directory (e.g. a removed account) is simply
// dropped from the result.
var ErrUnknownParty = errors.New("unknown party")

type Resolver interface {
	Resolve(ctx context.Context, partyID string) (*model.PartyProfile, error)
}

// Chain tries each resolver in order, returning the first hit.
// ErrUnknownParty propagates only if every resolver misses.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, partyID string) (*model.PartyProfile, error) {
	for _, r := range c {
		p, err := r.Resolve(ctx, partyID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnknownParty) {
			return nil, err
		}
	}
	return nil, ErrUnknownParty
}
