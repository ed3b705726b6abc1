// Package httpapi is the HTTP front door: a tiny JSON surface for
// starting and ending Live Activities, plus the ambient /metrics and
// /healthz endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/events"
	"github.com/sugarbridge/activity-engine/internal/logutil"
	"github.com/sugarbridge/activity-engine/internal/scheduler"
)

// API holds the dependencies the handlers need.
type API struct {
	Store  activity.Store
	Config scheduler.Config
	Events *events.Publisher
}

// NewAPI builds an API ready to have its routes registered.
func NewAPI(store activity.Store, cfg scheduler.Config, pub *events.Publisher) *API {
	return &API{Store: store, Config: cfg, Events: pub}
}

// Routes returns the fully wrapped handler: bot-path suppression and
// CORS applied ahead of routing.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleIndex)
	mux.HandleFunc("/start-live-activity", a.handleStart)
	mux.HandleFunc("/end-live-activity", a.handleEnd)
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	return chain(mux, botFilter, corsMiddleware)
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("SugarBridge Live Activity engine. Nothing to see here.\n"))
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// startRequest is the body of POST /start-live-activity.
type startRequest struct {
	PushToken       string                `json:"pushToken"`
	Environment     activity.Environment  `json:"environment"`
	AccountLocation string                `json:"accountLocation"`
	Duration        int                   `json:"duration"`
	Username        string                `json:"username,omitempty"`
	Password        string                `json:"password,omitempty"`
	AccountID       string                `json:"accountID,omitempty"`
	SessionID       string                `json:"sessionID,omitempty"`
	Preferences     *activity.Preferences `json:"preferences,omitempty"`
}

type endRequest struct {
	PushToken string `json:"pushToken"`
	Username  string `json:"username,omitempty"`
}

// activityID picks the record's identity: the account username when one
// is given, otherwise the push token itself.
func activityID(username, pushToken string) string {
	if username != "" {
		return username
	}
	return pushToken
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.PushToken == "" {
		http.Error(w, "pushToken is required", http.StatusBadRequest)
		return
	}
	for _, v := range []string{req.AccountID, req.SessionID} {
		if v == "" {
			continue
		}
		if _, err := uuid.Parse(v); err != nil {
			http.Error(w, "accountID and sessionID must be UUIDs", http.StatusBadRequest)
			return
		}
	}
	if req.Environment != activity.EnvironmentDevelopment && req.Environment != activity.EnvironmentProduction {
		req.Environment = activity.EnvironmentProduction
	}
	if req.Duration <= 0 {
		req.Duration = int(scheduler.MaximumDuration.Seconds())
	}

	id := activityID(req.Username, req.PushToken)
	now := time.Now()

	rec := &activity.Record{
		ID:              id,
		PushToken:       req.PushToken,
		Environment:     req.Environment,
		AccountLocation: req.AccountLocation,
		Duration:        req.Duration,
		Username:        req.Username,
		Password:        req.Password,
		AccountID:       req.AccountID,
		SessionID:       req.SessionID,
		Preferences:     req.Preferences,
		StartDate:       now,
		PollInterval:    int(scheduler.MinInterval.Seconds()),
	}

	ctx := r.Context()
	if err := a.Store.PutRecord(ctx, rec); err != nil {
		log.Printf("httpapi: put record for %s: %v", logutil.RedactIdentity(id), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.Store.Schedule(ctx, id, now); err != nil {
		log.Printf("httpapi: schedule %s: %v", logutil.RedactIdentity(id), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.Store.AddWidgetToken(ctx, req.Environment, req.PushToken); err != nil {
		log.Printf("httpapi: add widget token for %s: %v", logutil.RedactIdentity(id), err)
	}
	if a.Events != nil {
		a.Events.Publish(ctx, "activity.started", map[string]string{"id": logutil.RedactIdentity(id)})
	}

	w.WriteHeader(http.StatusOK)
}

func (a *API) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.PushToken == "" && req.Username == "" {
		http.Error(w, "pushToken or username is required", http.StatusBadRequest)
		return
	}

	id := activityID(req.Username, req.PushToken)
	ctx := r.Context()

	rec, err := a.Store.GetRecord(ctx, id)
	if err != nil && !errors.Is(err, activity.ErrNotFound) {
		log.Printf("httpapi: get record for %s: %v", logutil.RedactIdentity(id), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := a.Store.Unschedule(ctx, id); err != nil {
		log.Printf("httpapi: unschedule %s: %v", logutil.RedactIdentity(id), err)
	}
	if err := a.Store.DeleteRecord(ctx, id); err != nil && !errors.Is(err, activity.ErrNotFound) {
		log.Printf("httpapi: delete record for %s: %v", logutil.RedactIdentity(id), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec != nil {
		if err := a.Store.RemoveWidgetToken(ctx, rec.Environment, rec.PushToken); err != nil {
			log.Printf("httpapi: remove widget token for %s: %v", logutil.RedactIdentity(id), err)
		}
	}
	if a.Events != nil {
		a.Events.Publish(ctx, "activity.ended", map[string]string{"id": logutil.RedactIdentity(id), "reason": "client_request"})
	}

	w.WriteHeader(http.StatusOK)
}
