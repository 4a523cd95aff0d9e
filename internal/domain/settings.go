package domain

// SettingsKey is the fixed key of the singleton settings row.
const SettingsKey = "app"

// Settings are the runtime-togglable flags core components read at
// decision points. Persisted as a singleton row.
type Settings struct {
	AutoResubscribe bool `json:"auto_resubscribe"`
	DetailedLogging bool `json:"detailed_logging"`
	// PruneThresholdMinutes removes unwatched tokens idle longer than
	// this many minutes. 0 disables pruning.
	PruneThresholdMinutes int `json:"prune_threshold_minutes"`
}
