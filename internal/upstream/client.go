package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
)

// Client is a thin HTTP client against the upstream CGM provider. It
// performs login-on-demand and surfaces the three error classes this
// engine branches on, without modeling the provider's wire protocol any
// further than that.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient returns a Client with a conservative default timeout;
// callers should still pass a context deadline per call.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    baseURL,
	}
}

type loginRequest struct {
	AccountName string `json:"accountName"`
	Password    string `json:"password"`
}

type loginResponse struct {
	AccountID string `json:"accountId"`
	SessionID string `json:"sessionId"`
}

type readingResponse struct {
	Timestamp string `json:"systemTime"`
	Value     int    `json:"value"`
	Trend     string `json:"trend"`
}

// Fetch implements Fetcher. It logs in when no sessionID is present,
// then requests the reading history window.
func (c *Client) Fetch(ctx context.Context, creds Credentials, duration time.Duration) (Result, error) {
	sessionID := creds.SessionID
	var refreshedAccount, refreshedSession string

	if sessionID == "" {
		login, err := c.login(ctx, creds)
		if err != nil {
			return Result{}, err
		}
		sessionID = login.SessionID
		refreshedAccount = login.AccountID
		refreshedSession = login.SessionID
	}

	readings, err := c.readings(ctx, sessionID, duration)
	if err != nil {
		var hard *ClientHardError
		if isUnauthorized(err) && creds.Username != "" {
			login, loginErr := c.login(ctx, creds)
			if loginErr != nil {
				return Result{}, loginErr
			}
			refreshedAccount = login.AccountID
			refreshedSession = login.SessionID
			readings, err = c.readings(ctx, login.SessionID, duration)
			if err != nil {
				return Result{}, err
			}
		} else if errors.As(err, &hard) {
			return Result{}, err
		} else {
			return Result{}, err
		}
	}

	return Result{
		Readings:           readings,
		RefreshedAccountID: refreshedAccount,
		RefreshedSessionID: refreshedSession,
	}, nil
}

func (c *Client) login(ctx context.Context, creds Credentials) (loginResponse, error) {
	if creds.Username == "" || creds.Password == "" {
		return loginResponse{}, &ClientHardError{Reason: "no credentials available for login"}
	}

	body, _ := json.Marshal(loginRequest{AccountName: creds.Username, Password: creds.Password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return loginResponse{}, &GenericError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return loginResponse{}, &GenericError{Cause: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return loginResponse{}, &ClientHardError{Reason: fmt.Sprintf("login rejected: status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return loginResponse{}, &GenericError{Cause: fmt.Errorf("login: upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return loginResponse{}, &DecodingError{StatusCode: resp.StatusCode, Body: data}
	}

	var out loginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return loginResponse{}, &DecodingError{StatusCode: resp.StatusCode, Body: data, Cause: err}
	}
	return out, nil
}

func (c *Client) readings(ctx context.Context, sessionID string, duration time.Duration) ([]activity.Reading, error) {
	url := fmt.Sprintf("%s/readings?sessionId=%s&minutes=%d", c.BaseURL, sessionID, int(duration.Minutes()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &GenericError{Cause: err}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &GenericError{Cause: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &unauthorizedError{}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &DecodingError{StatusCode: resp.StatusCode, Body: data}
	case resp.StatusCode >= 500:
		return nil, &GenericError{Cause: fmt.Errorf("readings: upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &DecodingError{StatusCode: resp.StatusCode, Body: data}
	}

	var raw []readingResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodingError{StatusCode: resp.StatusCode, Body: data, Cause: err}
	}

	readings := make([]activity.Reading, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			continue
		}
		readings = append(readings, activity.Reading{
			Date:  t,
			Value: r.Value,
			Trend: activity.Trend(r.Trend),
		})
	}
	return readings, nil
}

// unauthorizedError is an internal sentinel used to trigger a single
// re-login attempt from Fetch; it never escapes the package.
type unauthorizedError struct{}

func (e *unauthorizedError) Error() string { return "upstream: unauthorized" }

func isUnauthorized(err error) bool {
	var u *unauthorizedError
	return errors.As(err, &u)
}
