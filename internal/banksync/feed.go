package banksync

import (
	"context"
	"math/rand/v2"

	"github.com/dvloznov/align/internal/domain"
)

// Feed returns the raw records of one open-finance pull.
type Feed interface {
	Fetch(ctx context.Context) ([]domain.BankRecord, error)
}

// StaticFeed serves the same fixed batch on every pull.
type StaticFeed struct {
	records []domain.BankRecord
}

// NewStaticFeed copies records into a feed.
func NewStaticFeed(records []domain.BankRecord) *StaticFeed {
	return &StaticFeed{records: append([]domain.BankRecord(nil), records...)}
}

// Fetch implements Feed.
func (f *StaticFeed) Fetch(ctx context.Context) ([]domain.BankRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]domain.BankRecord(nil), f.records...), nil
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) ([]domain.BankRecord, error)

// Fetch calls f.
func (f FeedFunc) Fetch(ctx context.Context) ([]domain.BankRecord, error) { return f(ctx) }

// OwnerAssigner decides which partner a synced record belongs to. users is
// never empty.
type OwnerAssigner interface {
	AssignOwner(users []domain.User, rec domain.BankRecord) string
}

// RandomOwner picks a user uniformly at random.
type RandomOwner struct{}

// AssignOwner implements OwnerAssigner.
func (RandomOwner) AssignOwner(users []domain.User, _ domain.BankRecord) string {
	return users[rand.IntN(len(users))].ID
}

// OwnerFunc adapts a function to OwnerAssigner.
type OwnerFunc func(users []domain.User, rec domain.BankRecord) string

// AssignOwner calls f.
func (f OwnerFunc) AssignOwner(users []domain.User, rec domain.BankRecord) string {
	return f(users, rec)
}

var (
	_ Feed          = (*StaticFeed)(nil)
	_ OwnerAssigner = RandomOwner{}
)
