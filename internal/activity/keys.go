package activity

import "fmt"

// Redis key layout for the schedule index.
const (
	scheduleKey = "live-activities:schedule"
)

// recordKey returns the Redis hash key for a single activity record.
func recordKey(id string) string {
	return fmt.Sprintf("live-activity:data:%s", id)
}

// widgetSetKey returns the Redis set key for an environment's widget tokens.
func widgetSetKey(env Environment) string {
	return fmt.Sprintf("widget-tokens:%s", env)
}
