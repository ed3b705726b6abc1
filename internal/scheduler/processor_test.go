package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/push"
	"github.com/sugarbridge/activity-engine/internal/upstream"
)

// fakeStore is a minimal in-memory activity.Store, a hand-rolled fake
// rather than a mocking framework.
type fakeStore struct {
	records  map[string]*activity.Record
	schedule map[string]time.Time
	unsched  []string
	deleted  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*activity.Record{}, schedule: map[string]time.Time{}}
}

func (s *fakeStore) PutRecord(ctx context.Context, rec *activity.Record) error {
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *fakeStore) GetRecord(ctx context.Context, id string) (*activity.Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, activity.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) DeleteRecord(ctx context.Context, id string) error {
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) Schedule(ctx context.Context, id string, score time.Time) error {
	s.schedule[id] = score
	return nil
}

func (s *fakeStore) Unschedule(ctx context.Context, id string) error {
	delete(s.schedule, id)
	s.unsched = append(s.unsched, id)
	return nil
}

func (s *fakeStore) DueBefore(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, score := range s.schedule {
		if !score.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) Claim(ctx context.Context, ids []string, newScore time.Time) error {
	for _, id := range ids {
		s.schedule[id] = newScore
	}
	return nil
}

func (s *fakeStore) AddWidgetToken(ctx context.Context, env activity.Environment, token string) error {
	return nil
}
func (s *fakeStore) RemoveWidgetToken(ctx context.Context, env activity.Environment, token string) error {
	return nil
}
func (s *fakeStore) ListWidgetTokens(ctx context.Context, env activity.Environment) ([]string, error) {
	return nil, nil
}

// fakeFetcher returns a scripted sequence of results/errors.
type fakeFetcher struct {
	result upstream.Result
	err    error
}

func (f *fakeFetcher) Fetch(ctx context.Context, creds upstream.Credentials, duration time.Duration) (upstream.Result, error) {
	return f.result, f.err
}

// fakePusher scripts the result of SendLiveActivityUpdate; the other
// two methods just record that they were called.
type fakePusher struct {
	updateResult push.Result
	endCalled    bool
	widgetCalled bool
}

func (f *fakePusher) SendLiveActivityUpdate(ctx context.Context, env activity.Environment, pushToken string, state push.ContentState, alert *push.Alert, staleDate, timestamp time.Time) push.Result {
	return f.updateResult
}

func (f *fakePusher) SendLiveActivityEnd(ctx context.Context, env activity.Environment, pushToken string) push.Result {
	f.endCalled = true
	return push.ResultOK
}

func (f *fakePusher) SendWidgetRefresh(ctx context.Context, env activity.Environment, pushToken string) push.Result {
	f.widgetCalled = true
	return push.ResultOK
}

func baseRecord(id string) *activity.Record {
	return &activity.Record{
		ID:           id,
		PushToken:    "token-" + id,
		Environment:  activity.EnvironmentDevelopment,
		Duration:     int(ReadingInterval.Seconds()),
		StartDate:    time.Now().Add(-time.Hour),
		PollInterval: int(MinInterval.Seconds()),
		Preferences: &activity.Preferences{
			TargetRange: activity.TargetRange{Lower: 70, Upper: 180},
			Unit:        activity.UnitMgdl,
		},
	}
}

func newTestProcessor(store activity.Store, fetcher upstream.Fetcher) *Processor {
	return &Processor{
		Store:   store,
		Fetcher: fetcher,
		Pusher:  &fakePusher{updateResult: push.ResultOK},
		Jitter:  func(n int) int { return 0 },
	}
}

// S1: happy path — a fresh reading arrives, pollInterval resets to
// MinInterval, and the new reading becomes LastReading.
func TestProcessOneHappyPathReschedulesAtMinInterval(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s1")
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	now := time.Now()
	reading := activity.Reading{Date: now, Value: 120, Trend: activity.TrendFlat}
	fetcher := &fakeFetcher{result: upstream.Result{Readings: []activity.Reading{reading}}}

	proc := newTestProcessor(store, fetcher)
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a healthy cycle")
	}
	if got.PollInterval != int(MinInterval.Seconds()) {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, int(MinInterval.Seconds()))
	}
	if got.RetryCount != 0 {
		t.Fatalf("retryCount = %d, want 0", got.RetryCount)
	}
	if got.LastReading == nil || got.LastReading.Value != 120 {
		t.Fatalf("LastReading = %+v, want value 120", got.LastReading)
	}
}

// S3: a 429 decoding error scales pollInterval by ErrorBackoff and
// schedules a 60s(+jitter) cooldown, bumping retryCount.
func TestProcessOneRateLimitedCooldown(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s3")
	rec.PollInterval = int(MinInterval.Seconds()) // 4
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.DecodingError{StatusCode: 429}}
	proc := newTestProcessor(store, fetcher)
	now := time.Now()
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a retryable error")
	}
	wantInterval := clampSeconds(int(float64(int(MinInterval.Seconds())) * ErrorBackoff))
	if got.PollInterval != wantInterval {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, wantInterval)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retryCount = %d, want 1", got.RetryCount)
	}
	next, ok := store.schedule[rec.ID]
	if !ok {
		t.Fatal("expected the activity to remain scheduled")
	}
	delay := next.Sub(now)
	if delay < 50*time.Second || delay > 70*time.Second {
		t.Fatalf("delay = %v, want within [50s,70s] of a 429 cooldown", delay)
	}
}

// terminate deletes a record and unschedules it in the same call,
// regardless of reason.
func TestTerminateDeletesAndUnschedules(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s4")
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	proc := newTestProcessor(store, &fakeFetcher{})
	proc.terminate(context.Background(), rec, activity.EndReasonAPNSInvalidTok)

	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted on terminate")
	}
	if _, ok := store.schedule[rec.ID]; ok {
		t.Fatal("expected activity to be unscheduled on terminate")
	}
}

// S4: a fresh reading pushed to a dead APNs token terminates the
// activity within ProcessOne itself, without a direct terminate() call.
func TestProcessOneTerminatesOnTerminalPushToken(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s4-live")
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	now := time.Now()
	reading := activity.Reading{Date: now, Value: 120, Trend: activity.TrendFlat}
	fetcher := &fakeFetcher{result: upstream.Result{Readings: []activity.Reading{reading}}}
	pusher := &fakePusher{updateResult: push.ResultTerminalToken}

	proc := newTestProcessor(store, fetcher)
	proc.Pusher = pusher
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	if !pusher.endCalled {
		t.Fatal("expected terminate to send a live-activity end push")
	}
	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted after a terminal push result")
	}
	if _, ok := store.schedule[rec.ID]; ok {
		t.Fatal("expected activity to be unscheduled after a terminal push result")
	}
}

// A hard client error (invalid credentials) terminates the activity
// without retrying.
func TestProcessOneTerminatesOnClientHardError(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s4b")
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.ClientHardError{Reason: "account disabled"}}
	proc := newTestProcessor(store, fetcher)
	proc.ProcessOne(context.Background(), rec.ID)

	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted on a client hard error")
	}
}

// S5: an activity past its maximum duration terminates immediately,
// without consulting the fetcher.
func TestProcessOneTerminatesAtMaxDuration(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("s5")
	rec.StartDate = time.Now().Add(-MaximumDuration - time.Minute)
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{result: upstream.Result{}}
	proc := newTestProcessor(store, fetcher)
	proc.ProcessOne(context.Background(), rec.ID)

	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted at max duration")
	}
	if _, ok := store.schedule[rec.ID]; ok {
		t.Fatal("expected activity to be unscheduled at max duration")
	}
}

// Missing records are unscheduled and otherwise ignored.
func TestProcessOneUnschedulesMissingRecord(t *testing.T) {
	store := newFakeStore()
	store.schedule["ghost"] = time.Now()

	proc := newTestProcessor(store, &fakeFetcher{})
	proc.ProcessOne(context.Background(), "ghost")

	if _, ok := store.schedule["ghost"]; ok {
		t.Fatal("expected a missing record's schedule entry to be removed")
	}
}

// An empty reading list backs off pollInterval by Backoff and
// reschedules after the previous (pre-backoff) interval.
func TestProcessOneNoReadingsBacksOff(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("no-readings")
	rec.PollInterval = int(MinInterval.Seconds())
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{result: upstream.Result{}}
	proc := newTestProcessor(store, fetcher)
	now := time.Now()
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a no-readings cycle")
	}
	wantInterval := clampSeconds(int(float64(int(MinInterval.Seconds())) * Backoff))
	if got.PollInterval != wantInterval {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, wantInterval)
	}
	next, ok := store.schedule[rec.ID]
	if !ok {
		t.Fatal("expected the activity to remain scheduled")
	}
	wantDelay := time.Duration(int(MinInterval.Seconds())) * time.Second
	if d := next.Sub(now); d != wantDelay {
		t.Fatalf("delay = %v, want %v", d, wantDelay)
	}
}

// A reading no newer than the last one, once stale past ReadingInterval,
// backs off pollInterval instead of polling at the tight cadence.
func TestProcessOneStaleReadingExpiredBacksOff(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("stale-expired")
	rec.PollInterval = int(MinInterval.Seconds())
	rec.RetryCount = 2
	now := time.Now()
	rec.LastReadingDate = now.Add(-400 * time.Second)
	rec.LastReading = &activity.Reading{Date: rec.LastReadingDate, Value: 100, Trend: activity.TrendFlat}
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = now

	fetcher := &fakeFetcher{result: upstream.Result{Readings: []activity.Reading{*rec.LastReading}}}
	proc := newTestProcessor(store, fetcher)
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a stale-reading cycle")
	}
	wantInterval := clampSeconds(int(float64(int(MinInterval.Seconds())) * Backoff))
	if got.PollInterval != wantInterval {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, wantInterval)
	}
	if got.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want unchanged at 2", got.RetryCount)
	}
}

// A reading no newer than the last one, still within ReadingInterval,
// waits at the tight cadence for the next reading to land.
func TestProcessOneStaleReadingWaitingPollsTightly(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("stale-waiting")
	rec.PollInterval = int(MinInterval.Seconds())
	now := time.Now()
	rec.LastReadingDate = now.Add(-100 * time.Second)
	rec.LastReading = &activity.Reading{Date: rec.LastReadingDate, Value: 100, Trend: activity.TrendFlat}
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = now

	fetcher := &fakeFetcher{result: upstream.Result{Readings: []activity.Reading{*rec.LastReading}}}
	proc := newTestProcessor(store, fetcher)
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a stale-reading cycle")
	}
	if got.PollInterval != int(MinInterval.Seconds()) {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, int(MinInterval.Seconds()))
	}
	next, ok := store.schedule[rec.ID]
	if !ok {
		t.Fatal("expected the activity to remain scheduled")
	}
	wantDelay := (ReadingInterval - 100*time.Second) + MinInterval
	if d := next.Sub(now); d != wantDelay {
		t.Fatalf("delay = %v, want %v", d, wantDelay)
	}
}

// A non-429 decoding error backs off on the standard curve, with no
// cooldown window.
func TestProcessOneDecodingErrorNon429BacksOff(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("decoding-500")
	rec.PollInterval = int(MinInterval.Seconds())
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.DecodingError{StatusCode: 500}}
	proc := newTestProcessor(store, fetcher)
	now := time.Now()
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a retryable decoding error")
	}
	wantInterval := clampSeconds(int(float64(int(MinInterval.Seconds())) * ErrorBackoff))
	if got.PollInterval != wantInterval {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, wantInterval)
	}
	next, ok := store.schedule[rec.ID]
	if !ok {
		t.Fatal("expected the activity to remain scheduled")
	}
	wantDelay := time.Duration(wantInterval) * time.Second
	if d := next.Sub(now); d != wantDelay {
		t.Fatalf("delay = %v, want %v (no 429 cooldown)", d, wantDelay)
	}
}

// Exhausting the decoding retry budget at MaxInterval terminates the
// activity instead of retrying forever.
func TestProcessOneDecodingErrorTerminatesAfterTooManyRetries(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("decoding-exhausted")
	rec.PollInterval = int(MaxInterval.Seconds())
	rec.RetryCount = decodingMaxRetry + 1
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.DecodingError{StatusCode: 500}}
	proc := newTestProcessor(store, fetcher)
	proc.ProcessOne(context.Background(), rec.ID)

	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted once the decoding retry budget is exhausted")
	}
}

// A generic network/timeout error backs off pollInterval exponentially
// and bumps retryCount.
func TestProcessOneGenericErrorBacksOff(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("generic")
	rec.PollInterval = int(MinInterval.Seconds())
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.GenericError{Cause: context.DeadlineExceeded}}
	proc := newTestProcessor(store, fetcher)
	now := time.Now()
	proc.Now = func() time.Time { return now }
	proc.ProcessOne(context.Background(), rec.ID)

	got := store.records[rec.ID]
	if got == nil {
		t.Fatal("expected record to survive a retryable generic error")
	}
	wantInterval := clampSeconds(int(float64(int(MinInterval.Seconds())) * ErrorBackoff))
	if got.PollInterval != wantInterval {
		t.Fatalf("pollInterval = %d, want %d", got.PollInterval, wantInterval)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retryCount = %d, want 1", got.RetryCount)
	}
}

// Exhausting the generic retry budget at MaxInterval terminates the
// activity.
func TestProcessOneGenericErrorTerminatesAfterTooManyRetries(t *testing.T) {
	store := newFakeStore()
	rec := baseRecord("generic-exhausted")
	rec.PollInterval = int(MaxInterval.Seconds())
	rec.RetryCount = genericMaxRetry
	store.records[rec.ID] = rec
	store.schedule[rec.ID] = time.Now()

	fetcher := &fakeFetcher{err: &upstream.GenericError{Cause: context.DeadlineExceeded}}
	proc := newTestProcessor(store, fetcher)
	proc.ProcessOne(context.Background(), rec.ID)

	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("expected record to be deleted once the generic retry budget is exhausted")
	}
}
