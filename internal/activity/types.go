// Package activity holds the persistent data model for a Live Activity
// and the StateStore that backs it.
package activity

import "time"

// Environment selects which APNs environment a push token belongs to.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
)

// Unit is the glucose unit a device's preferences are expressed in.
type Unit string

const (
	UnitMgdl Unit = "mgdl"
	UnitMmol Unit = "mmol"
)

// Trend mirrors the upstream provider's trend enum.
type Trend string

const (
	TrendFlat           Trend = "flat"
	TrendFortyFiveUp    Trend = "fortyFiveUp"
	TrendFortyFiveDown  Trend = "fortyFiveDown"
	TrendSingleUp       Trend = "singleUp"
	TrendSingleDown     Trend = "singleDown"
	TrendDoubleUp       Trend = "doubleUp"
	TrendDoubleDown     Trend = "doubleDown"
	TrendNone           Trend = "none"
	TrendNotComputable  Trend = "notComputable"
	TrendRateOutOfRange Trend = "rateOutOfRange"
)

// Reading is a single glucose observation from the upstream provider.
type Reading struct {
	Date  time.Time `json:"date"`
	Value int       `json:"value"`
	Trend Trend     `json:"trend"`
}

// TargetRange is a closed integer interval, in the same unit as the
// reading it's compared against.
type TargetRange struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
}

// Contains reports whether v falls within the closed range [Lower, Upper].
func (r TargetRange) Contains(v int) bool {
	return v >= r.Lower && v <= r.Upper
}

// Preferences controls alerting behavior for an activity.
type Preferences struct {
	TargetRange TargetRange `json:"targetRange"`
	Unit        Unit        `json:"unit"`
}

// EndReason records why an activity was terminated, for logs only.
type EndReason string

const (
	EndReasonMaxDuration     EndReason = "maxDuration"
	EndReasonDexcomError     EndReason = "dexcomError"
	EndReasonAPNSInvalidTok  EndReason = "apnsInvalidToken"
	EndReasonManualStop      EndReason = "manualStop"
	EndReasonTooManyRetries  EndReason = "tooManyRetries"
)

// Record is the sole source of truth for one Live Activity.
type Record struct {
	ID              string       `json:"id"`
	PushToken       string       `json:"pushToken"`
	Environment     Environment  `json:"environment"`
	AccountLocation string       `json:"accountLocation"`
	Duration        int          `json:"duration"`
	Username        string       `json:"username,omitempty"`
	Password        string       `json:"password,omitempty"`
	AccountID       string       `json:"accountID,omitempty"`
	SessionID       string       `json:"sessionID,omitempty"`
	Preferences     *Preferences `json:"preferences,omitempty"`
	StartDate       time.Time    `json:"startDate"`
	LastReadingDate time.Time    `json:"lastReadingDate,omitempty"`
	LastReading     *Reading     `json:"lastReading,omitempty"`
	PollInterval    int          `json:"pollInterval"`
	RetryCount      int          `json:"retryCount"`
}

// HasCredentials reports whether the record carries a username/password
// pair that can be used to re-login upstream.
func (r *Record) HasCredentials() bool {
	return r.Username != "" && r.Password != ""
}
