package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/observability"
	"github.com/sugarbridge/activity-engine/internal/push"
)

// WidgetTicker runs the periodic silent widget-refresh fan-out on its
// own timer, independent of the 1Hz tick loop.
type WidgetTicker struct {
	Store    activity.Store
	Pusher   push.Pusher
	Interval time.Duration
}

const widgetTickFloor = 5 * time.Minute

// Start runs the widget ticker until ctx is cancelled.
func (w *WidgetTicker) Start(ctx context.Context) {
	interval := w.Interval
	if interval < widgetTickFloor {
		interval = widgetTickFloor
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fanOut(ctx)
		}
	}
}

func (w *WidgetTicker) fanOut(ctx context.Context) {
	for _, env := range []activity.Environment{activity.EnvironmentDevelopment, activity.EnvironmentProduction} {
		tokens, err := w.Store.ListWidgetTokens(ctx, env)
		if err != nil {
			log.Printf("widgetticker: listing tokens for %s: %v", env, err)
			continue
		}
		for _, token := range tokens {
			result := w.Pusher.SendWidgetRefresh(ctx, env, token)
			if result == push.ResultTerminalToken {
				if err := w.Store.RemoveWidgetToken(ctx, env, token); err != nil {
					log.Printf("widgetticker: removing dead token: %v", err)
					continue
				}
				observability.WidgetTokensRemoved.WithLabelValues(string(env)).Inc()
			}
		}
	}
}
