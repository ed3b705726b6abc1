// Package push builds and sends APNs Live-Activity payloads over
// github.com/sideshow/apns2, keeping one sandbox and one production
// token client built once at startup.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/observability"
)

// Result classifies the outcome of a single push attempt.
type Result int

const (
	// ResultOK means APNs accepted the push.
	ResultOK Result = iota
	// ResultTerminalToken means the device token is permanently dead
	// (BadDeviceToken, Unregistered, ExpiredToken).
	ResultTerminalToken
	// ResultTransient means the push failed for a reason the next
	// cycle's retry will likely resolve on its own.
	ResultTransient
)

// HistoryPoint is one entry in the compact Live-Activity state payload.
type HistoryPoint struct {
	Timestamp int64 `json:"t"`
	Value     int16 `json:"v"`
}

// ContentState is the compact payload schema sent in every update.
type ContentState struct {
	Current        *int16         `json:"c"`
	History        []HistoryPoint `json:"h"`
	SessionExpired *bool          `json:"se,omitempty"`
	Event          string         `json:"event,omitempty"`
}

// Alert is the optional title/body attached to a Live-Activity update.
type Alert struct {
	Title string
	Body  string
}

// Pusher is the APNs surface the scheduler depends on. *Gateway is the
// only production implementation; tests script their own.
type Pusher interface {
	SendLiveActivityUpdate(ctx context.Context, env activity.Environment, pushToken string, state ContentState, alert *Alert, staleDate time.Time, timestamp time.Time) Result
	SendLiveActivityEnd(ctx context.Context, env activity.Environment, pushToken string) Result
	SendWidgetRefresh(ctx context.Context, env activity.Environment, pushToken string) Result
}

// Gateway sends Live-Activity and widget pushes through APNs. It holds
// one token-authenticated client per environment, created once at
// startup; it carries no other state.
type Gateway struct {
	topic      string
	sandbox    *apns2.Client
	production *apns2.Client
}

// Config holds the APNs JWT signing material.
type Config struct {
	Topic      string
	KeyID      string
	TeamID     string
	PrivateKey []byte
}

// NewGateway builds both environment clients from the PEM key bytes. If
// the key is empty, NewGateway returns a Gateway whose update and end
// sends log and no-op and whose widget refresh no-ops silently, so the
// engine still runs with push sending disabled when APNs credentials
// are absent.
func NewGateway(cfg Config) (*Gateway, error) {
	if len(cfg.PrivateKey) == 0 {
		log.Printf("push: no APNs signing key configured, push sending disabled")
		return &Gateway{topic: cfg.Topic}, nil
	}

	authKey, err := token.AuthKeyFromBytes(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("push: parsing APNs auth key: %w", err)
	}
	tok := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	return &Gateway{
		topic:      cfg.Topic,
		sandbox:    apns2.NewTokenClient(tok),
		production: apns2.NewTokenClient(tok).Production(),
	}, nil
}

func (g *Gateway) clientFor(env activity.Environment) *apns2.Client {
	if env == activity.EnvironmentProduction {
		return g.production
	}
	return g.sandbox
}

func (g *Gateway) disabled() bool {
	return g.sandbox == nil && g.production == nil
}

// SendLiveActivityUpdate pushes a fresh content-state, optionally with
// an alert attached.
func (g *Gateway) SendLiveActivityUpdate(ctx context.Context, env activity.Environment, pushToken string, state ContentState, alert *Alert, staleDate time.Time, timestamp time.Time) Result {
	if g.disabled() {
		log.Printf("push: skipping live-activity update (gateway disabled)")
		return ResultTransient
	}

	p := payload.NewPayload().
		Event(payload.EventUpdate).
		ContentState(state).
		Timestamp(timestamp.Unix()).
		StaleDate(staleDate.Unix())

	if alert != nil {
		p = p.AlertTitle(alert.Title).AlertBody(alert.Body).Sound("default")
		observability.AlertsSent.WithLabelValues(alert.Title).Inc()
	}

	return g.send(ctx, env, pushToken, p, "update")
}

// SendLiveActivityEnd pushes the terminal content-state: no current
// reading, empty history, sessionExpired=true.
func (g *Gateway) SendLiveActivityEnd(ctx context.Context, env activity.Environment, pushToken string) Result {
	if g.disabled() {
		log.Printf("push: skipping live-activity end (gateway disabled)")
		return ResultTransient
	}

	expired := true
	state := ContentState{
		Current:        nil,
		History:        []HistoryPoint{},
		SessionExpired: &expired,
		Event:          "end",
	}

	p := payload.NewPayload().
		Event(payload.EventEnd).
		ContentState(state).
		Timestamp(time.Now().Unix())

	return g.send(ctx, env, pushToken, p, "end")
}

// SendWidgetRefresh sends a silent background push instructing the
// device to rerun its widget timeline.
func (g *Gateway) SendWidgetRefresh(ctx context.Context, env activity.Environment, pushToken string) Result {
	if g.disabled() {
		return ResultTransient
	}

	p := payload.NewPayload().ContentAvailable()
	return g.send(ctx, env, pushToken, p, "widget")
}

func (g *Gateway) send(ctx context.Context, env activity.Environment, pushToken string, p *payload.Payload, kind string) Result {
	client := g.clientFor(env)
	notification := &apns2.Notification{
		DeviceToken: pushToken,
		Topic:       g.topic,
		PushType:    apns2.EPushTypeLiveActivity,
		Payload:     p,
	}
	if kind == "widget" {
		notification.PushType = apns2.EPushTypeBackground
		notification.Priority = apns2.PriorityLow
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := client.PushWithContext(ctx, notification)
	observability.PushLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Printf("push: transport error kind=%s err=%v", kind, err)
		observability.PushesSent.WithLabelValues(kind, "transport_error").Inc()
		return ResultTransient
	}

	if resp.Sent() {
		observability.PushesSent.WithLabelValues(kind, "sent").Inc()
		return ResultOK
	}

	switch resp.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonExpiredToken:
		log.Printf("push: terminal token kind=%s reason=%s", kind, resp.Reason)
		observability.PushesSent.WithLabelValues(kind, "terminal").Inc()
		return ResultTerminalToken
	default:
		log.Printf("push: non-terminal error kind=%s status=%d reason=%s", kind, resp.StatusCode, resp.Reason)
		observability.PushesSent.WithLabelValues(kind, "non_terminal").Inc()
		return ResultTransient
	}
}

// MarshalContentState is exposed for logging/debugging call sites that
// want the raw compact payload without going through payload.Payload.
func MarshalContentState(state ContentState) ([]byte, error) {
	return json.Marshal(state)
}
