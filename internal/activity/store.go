package activity

import (
	"context"
	"time"
)

// Store is the contract over the backing key-value store. All
// operations are individually atomic against the backend; no
// multi-key transactions are required.
type Store interface {
	PutRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	DeleteRecord(ctx context.Context, id string) error

	Schedule(ctx context.Context, id string, score time.Time) error
	Unschedule(ctx context.Context, id string) error
	DueBefore(ctx context.Context, now time.Time) ([]string, error)
	Claim(ctx context.Context, ids []string, newScore time.Time) error

	AddWidgetToken(ctx context.Context, env Environment, token string) error
	RemoveWidgetToken(ctx context.Context, env Environment, token string) error
	ListWidgetTokens(ctx context.Context, env Environment) ([]string, error)
}
