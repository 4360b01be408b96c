package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config carries the dispatch engine's configuration. Fields bind to flags
// and are overridable from WARDEN_-prefixed environment variables.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DatabaseURL string
	BeaconsFile string

	DedupWindowSeconds    int
	Fanout                int
	AlertTTLSeconds       int
	SweepIntervalSeconds  int
	FallbackPool          int
	GuardStalenessSeconds int
	ReportRepeatThreshold int

	KafkaBrokers string
	KafkaTopic   string

	ChatBaseURL string
	ChatToken   string

	ClaudeAPIKey string
	ClaudeModel  string

	GuardTokens string
	AdminTokens string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.BeaconsFile, "beacons-file", "", "JSON beacon topology seed for the in-memory store")

	fs.IntVar(&c.DedupWindowSeconds, "dedup-window-seconds", 300, "window within which co-located signals merge into one incident")
	fs.IntVar(&c.Fanout, "fanout", 3, "guards alerted in parallel per dispatch (1..20)")
	fs.IntVar(&c.AlertTTLSeconds, "alert-ttl-seconds", 120, "seconds before an unanswered alert expires")
	fs.IntVar(&c.SweepIntervalSeconds, "sweep-interval-seconds", 30, "how often the expiry/redispatch sweep runs")
	fs.IntVar(&c.FallbackPool, "fallback-pool", 5, "campus-wide candidate pool when the proximity search is empty (0 disables)")
	fs.IntVar(&c.GuardStalenessSeconds, "guard-staleness-seconds", 0, "exclude guards with older location confirmations (0 disables)")
	fs.IntVar(&c.ReportRepeatThreshold, "report-repeat-threshold", 3, "signal count at which repeated student reports escalate (0 disables)")

	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for push notifications (empty disables)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "warden.notifications", "Kafka topic for push notification events")

	fs.StringVar(&c.ChatBaseURL, "chat-base-url", "", "chat collaborator base URL (empty = in-memory stub)")
	fs.StringVar(&c.ChatToken, "chat-token", "", "bearer token for the chat collaborator")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for dispatch brief generation (empty disables briefs)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model for dispatch briefs")

	fs.StringVar(&c.GuardTokens, "guard-tokens", "", "comma-separated bearer tokens for guard and signal endpoints")
	fs.StringVar(&c.AdminTokens, "admin-tokens", "", "comma-separated bearer tokens with admin privileges")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DedupWindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_WINDOW_SECONDS %d (must be positive)", c.DedupWindowSeconds))
	}
	if c.Fanout <= 0 || c.Fanout > 20 {
		errs = append(errs, fmt.Errorf("invalid FANOUT %d (must be 1..20)", c.Fanout))
	}
	if c.AlertTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid ALERT_TTL_SECONDS %d (must be positive)", c.AlertTTLSeconds))
	}
	if c.SweepIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS %d (must be positive)", c.SweepIntervalSeconds))
	}
	if c.FallbackPool < 0 {
		errs = append(errs, fmt.Errorf("invalid FALLBACK_POOL %d (must be >= 0)", c.FallbackPool))
	}
	if c.GuardStalenessSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid GUARD_STALENESS_SECONDS %d (must be >= 0)", c.GuardStalenessSeconds))
	}
	if c.ReportRepeatThreshold < 0 {
		errs = append(errs, fmt.Errorf("invalid REPORT_REPEAT_THRESHOLD %d (must be >= 0)", c.ReportRepeatThreshold))
	}

	// Briefs ride on the chat conversation; an API key without a model is
	// a misconfiguration.
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}
	if c.ChatBaseURL != "" && c.ChatToken == "" {
		errs = append(errs, errors.New("CHAT_TOKEN is required when CHAT_BASE_URL is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SplitList splits a comma-separated flag value into trimmed, non-empty
// entries.
func SplitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
