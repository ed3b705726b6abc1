// Command server runs the SugarBridge Live Activity engine: the HTTP
// front door, the 1Hz scheduler tick loop, and the widget refresh
// ticker.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/config"
	"github.com/sugarbridge/activity-engine/internal/events"
	"github.com/sugarbridge/activity-engine/internal/httpapi"
	"github.com/sugarbridge/activity-engine/internal/push"
	"github.com/sugarbridge/activity-engine/internal/scheduler"
	"github.com/sugarbridge/activity-engine/internal/upstream"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := activity.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("main: connecting to redis: %v", err)
	}

	gateway, err := push.NewGateway(push.Config{
		Topic:      cfg.APNSTopic,
		KeyID:      cfg.APNSKeyID,
		TeamID:     cfg.APNSTeamID,
		PrivateKey: cfg.APNSPem,
	})
	if err != nil {
		log.Fatalf("main: building push gateway: %v", err)
	}

	fetcher := upstream.NewClient(upstreamBaseURL())
	publisher := events.NewPublisher()

	schedCfg := scheduler.Config{
		MaxConcurrency:          cfg.MaxConcurrency,
		CircuitBreakerThreshold: scheduler.DefaultConfig().CircuitBreakerThreshold,
		WidgetTickInterval:      cfg.WidgetTickInterval,
	}

	proc := &scheduler.Processor{
		Store:   store,
		Fetcher: fetcher,
		Pusher:  gateway,
		Limiter: scheduler.NewUpstreamLimiter(1, 3),
		Events:  publisher,
	}

	sched := scheduler.New(store, proc, schedCfg)
	widgetTicker := &scheduler.WidgetTicker{
		Store:    store,
		Pusher:   gateway,
		Interval: cfg.WidgetTickInterval,
	}

	go sched.Start(ctx)
	go widgetTicker.Start(ctx)

	api := httpapi.NewAPI(store, schedCfg, publisher)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("main: listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("main: http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("main: graceful shutdown failed: %v", err)
	}
}

// upstreamBaseURL reads the CGM provider base URL from the environment
// directly, since the wire protocol it talks is outside the engine's
// own documented config surface.
func upstreamBaseURL() string {
	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		return v
	}
	return "https://share2.dexcom.com/ShareWebServices/Services"
}
