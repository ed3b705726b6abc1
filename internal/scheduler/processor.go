package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/alert"
	"github.com/sugarbridge/activity-engine/internal/events"
	"github.com/sugarbridge/activity-engine/internal/logutil"
	"github.com/sugarbridge/activity-engine/internal/observability"
	"github.com/sugarbridge/activity-engine/internal/push"
	"github.com/sugarbridge/activity-engine/internal/upstream"
)

// Processor implements the per-activity polling state machine: fetch,
// decide, push, reschedule or terminate.
type Processor struct {
	Store   activity.Store
	Fetcher upstream.Fetcher
	Pusher  push.Pusher
	Limiter *UpstreamLimiter
	Events  *events.Publisher // optional: nil disables lifecycle notices
	Now     func() time.Time
	Jitter  func(n int) int // for tests: deterministic jitter in seconds
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Processor) jitter(n int) int {
	if p.Jitter != nil {
		return p.Jitter(n)
	}
	if n <= 0 {
		return 0
	}
	return rand.Intn(2*n+1) - n
}

// ProcessOne runs exactly one processing cycle for id.
func (p *Processor) ProcessOne(ctx context.Context, id string) {
	now := p.now()

	rec, err := p.Store.GetRecord(ctx, id)
	if errors.Is(err, activity.ErrNotFound) {
		p.unschedule(ctx, id, "record_missing")
		return
	}
	if err != nil {
		log.Printf("processor: store error reading %s: %v", logutil.RedactIdentity(id), err)
		observability.ProcessorOutcomes.WithLabelValues("store_error").Inc()
		return
	}

	if now.Sub(rec.StartDate) >= MaximumDuration {
		p.terminate(ctx, rec, activity.EndReasonMaxDuration)
		return
	}

	if p.Limiter != nil && !p.Limiter.Allow(id) {
		// Respect the upstream rate limit: skip this tick without
		// mutating retry state, the claim rescore will retry us soon.
		observability.ProcessorOutcomes.WithLabelValues("rate_limited").Inc()
		return
	}

	creds := upstream.Credentials{
		Username:        rec.Username,
		Password:        rec.Password,
		AccountID:       rec.AccountID,
		SessionID:       rec.SessionID,
		AccountLocation: rec.AccountLocation,
	}

	result, err := p.Fetcher.Fetch(ctx, creds, time.Duration(rec.Duration)*time.Second)
	if err != nil {
		p.handleFetchError(ctx, rec, now, err)
		return
	}

	if len(result.Readings) == 0 {
		p.applyRefresh(rec, result)
		newInterval := scaleInterval(rec.PollInterval, Backoff)
		delay := time.Duration(rec.PollInterval) * time.Second
		rec.PollInterval = newInterval
		p.reschedule(ctx, rec, now, delay, true, "no_readings")
		return
	}

	latest := result.Readings[len(result.Readings)-1]
	p.applyRefresh(rec, result)

	if !rec.LastReadingDate.IsZero() && !latest.Date.After(rec.LastReadingDate) {
		sinceLast := now.Sub(rec.LastReadingDate)
		if sinceLast > ReadingInterval {
			newInterval := scaleInterval(rec.PollInterval, Backoff)
			delay := time.Duration(rec.PollInterval) * time.Second
			rec.PollInterval = newInterval
			p.reschedule(ctx, rec, now, delay, false, "stale_reading_expired")
			return
		}
		untilNext := ReadingInterval - sinceLast
		delay := untilNext + MinInterval
		if delay < MinInterval {
			delay = MinInterval
		}
		rec.PollInterval = int(MinInterval.Seconds())
		p.reschedule(ctx, rec, now, delay, true, "stale_reading_waiting")
		return
	}

	// New reading path: decide alert, push, and terminate on a dead token.
	alertContent := alert.Decide(latest, rec.LastReading, rec.Preferences)

	current16 := int16(latest.Value)
	state := push.ContentState{
		Current: &current16,
		History: []push.HistoryPoint{{Timestamp: latest.Date.Unix(), Value: current16}},
	}
	var pushAlert *push.Alert
	if alertContent != nil {
		pushAlert = &push.Alert{Title: alertContent.Title, Body: alertContent.Body}
	}

	staleDate := latest.Date.Add(ReadingInterval + MinInterval)
	result2 := p.Pusher.SendLiveActivityUpdate(ctx, rec.Environment, rec.PushToken, state, pushAlert, staleDate, now)
	if result2 == push.ResultTerminalToken {
		p.terminate(ctx, rec, activity.EndReasonAPNSInvalidTok)
		return
	}

	sinceLatest := now.Sub(latest.Date)
	untilNext := ReadingInterval - sinceLatest
	delay := untilNext + MinInterval
	if delay < MinInterval {
		delay = MinInterval
	}
	rec.PollInterval = int(MinInterval.Seconds())
	rec.LastReading = &latest
	rec.LastReadingDate = latest.Date
	p.reschedule(ctx, rec, now, delay, true, "new_reading")
}

func (p *Processor) applyRefresh(rec *activity.Record, result upstream.Result) {
	if result.RefreshedAccountID != "" {
		rec.AccountID = result.RefreshedAccountID
	}
	if result.RefreshedSessionID != "" {
		rec.SessionID = result.RefreshedSessionID
	}
}

func (p *Processor) handleFetchError(ctx context.Context, rec *activity.Record, now time.Time, err error) {
	var hard *upstream.ClientHardError
	var decoding *upstream.DecodingError
	var generic *upstream.GenericError

	switch {
	case errors.As(err, &hard):
		observability.UpstreamErrors.WithLabelValues("client_hard").Inc()
		p.terminate(ctx, rec, activity.EndReasonDexcomError)

	case errors.As(err, &decoding):
		observability.UpstreamErrors.WithLabelValues("decoding").Inc()
		p.handleDecoding(ctx, rec, now, decoding)

	case errors.As(err, &generic):
		observability.UpstreamErrors.WithLabelValues("generic").Inc()
		p.handleGeneric(ctx, rec, now)

	default:
		observability.UpstreamErrors.WithLabelValues("unknown").Inc()
		p.handleGeneric(ctx, rec, now)
	}
}

// handleDecoding handles a response body the provider sent that this
// client could not parse.
func (p *Processor) handleDecoding(ctx context.Context, rec *activity.Record, now time.Time, e *upstream.DecodingError) {
	if rec.PollInterval >= int(MaxInterval.Seconds()) && rec.RetryCount > decodingMaxRetry {
		p.terminate(ctx, rec, activity.EndReasonTooManyRetries)
		return
	}

	rec.PollInterval = scaleInterval(rec.PollInterval, ErrorBackoff)
	rec.RetryCount++

	var delay time.Duration
	if e.StatusCode == 429 {
		delay = time.Duration(60+p.jitter(10)) * time.Second
	} else {
		delay = time.Duration(rec.PollInterval) * time.Second
	}
	p.reschedule(ctx, rec, now, delay, false, "decoding_error")
}

// handleGeneric handles network, timeout, and 5xx failures with
// exponential backoff.
func (p *Processor) handleGeneric(ctx context.Context, rec *activity.Record, now time.Time) {
	if rec.PollInterval >= int(MaxInterval.Seconds()) && rec.RetryCount >= genericMaxRetry {
		p.terminate(ctx, rec, activity.EndReasonTooManyRetries)
		return
	}

	rec.PollInterval = scaleInterval(rec.PollInterval, ErrorBackoff)
	rec.RetryCount++
	delay := time.Duration(rec.PollInterval) * time.Second
	p.reschedule(ctx, rec, now, delay, false, "generic_error")
}

// reschedule persists rec and upserts the schedule entry. resetRetries
// zeroes RetryCount on success paths only.
func (p *Processor) reschedule(ctx context.Context, rec *activity.Record, now time.Time, delay time.Duration, resetRetries bool, reason string) {
	if resetRetries {
		rec.RetryCount = 0
	}
	clampPollInterval(rec)

	if err := p.Store.PutRecord(ctx, rec); err != nil {
		log.Printf("processor: failed to persist %s: %v", logutil.RedactIdentity(rec.ID), err)
		observability.ProcessorOutcomes.WithLabelValues("store_error").Inc()
		return
	}
	next := now.Add(delay)
	if err := p.Store.Schedule(ctx, rec.ID, next); err != nil {
		log.Printf("processor: failed to schedule %s: %v", logutil.RedactIdentity(rec.ID), err)
		observability.ProcessorOutcomes.WithLabelValues("store_error").Inc()
		return
	}

	logDecision(Decision{Component: "processor", ID: logutil.RedactIdentity(rec.ID), Outcome: "rescheduled", Reason: reason, DelayMS: delay.Milliseconds()})
	observability.ProcessorOutcomes.WithLabelValues(reason).Inc()
}

// terminate sends a best-effort end push, then deletes the record and
// schedule entry.
func (p *Processor) terminate(ctx context.Context, rec *activity.Record, reason activity.EndReason) {
	if p.Pusher != nil {
		p.Pusher.SendLiveActivityEnd(ctx, rec.Environment, rec.PushToken)
	}
	if err := p.Store.DeleteRecord(ctx, rec.ID); err != nil {
		log.Printf("processor: failed to delete record %s: %v", logutil.RedactIdentity(rec.ID), err)
	}
	if err := p.Store.Unschedule(ctx, rec.ID); err != nil {
		log.Printf("processor: failed to unschedule %s: %v", logutil.RedactIdentity(rec.ID), err)
	}
	if p.Limiter != nil {
		p.Limiter.Forget(rec.ID)
	}
	if p.Events != nil {
		p.Events.Publish(ctx, "activity.ended", map[string]string{"id": logutil.RedactIdentity(rec.ID), "reason": string(reason)})
	}

	logDecision(Decision{Component: "processor", ID: logutil.RedactIdentity(rec.ID), Outcome: "terminated", Reason: string(reason)})
	observability.EndReasons.WithLabelValues(string(reason)).Inc()
}

func (p *Processor) unschedule(ctx context.Context, id string, reason string) {
	if err := p.Store.Unschedule(ctx, id); err != nil {
		log.Printf("processor: failed to unschedule %s: %v", logutil.RedactIdentity(id), err)
	}
	logDecision(Decision{Component: "processor", ID: logutil.RedactIdentity(id), Outcome: "skipped", Reason: reason})
}

// scaleInterval multiplies pollInterval (seconds) by factor, clamped to
// [MinInterval, MaxInterval].
func scaleInterval(pollInterval int, factor float64) int {
	scaled := int(float64(pollInterval) * factor)
	return clampSeconds(scaled)
}

func clampSeconds(seconds int) int {
	min := int(MinInterval.Seconds())
	max := int(MaxInterval.Seconds())
	if seconds < min {
		return min
	}
	if seconds > max {
		return max
	}
	return seconds
}

func clampPollInterval(rec *activity.Record) {
	rec.PollInterval = clampSeconds(rec.PollInterval)
}

func logDecision(d Decision) {
	b, _ := json.Marshal(d)
	log.Println(string(b))
}

