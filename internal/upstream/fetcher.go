// Package upstream defines the contract the scheduler uses to pull
// fresh readings from the CGM provider, along with the three error
// classes the ActivityProcessor branches on. This package deliberately
// stays thin: the upstream wire protocol belongs to an external
// collaborator, not to this repository.
package upstream

import (
	"context"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
)

// Credentials is the subset of an activity.Record a Fetcher needs to
// authenticate and re-authenticate against the upstream provider.
type Credentials struct {
	Username        string
	Password        string
	AccountID       string
	SessionID       string
	AccountLocation string
}

// Result carries the readings for one poll plus any session/account ids
// the fetcher refreshed while logging back in.
type Result struct {
	Readings           []activity.Reading
	RefreshedAccountID string
	RefreshedSessionID string
}

// Fetcher is the single operation the scheduler needs from the upstream
// CGM client.
type Fetcher interface {
	Fetch(ctx context.Context, creds Credentials, duration time.Duration) (Result, error)
}
