package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		DedupWindowSeconds:    300,
		Fanout:                3,
		AlertTTLSeconds:       120,
		SweepIntervalSeconds:  30,
		FallbackPool:          5,
		ReportRepeatThreshold: 3,
		KafkaTopic:            "warden.notifications",
		ClaudeModel:           "claude-sonnet-4-20250514",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.DedupWindowSeconds != 300 {
		t.Errorf("DedupWindowSeconds = %d, want 300", c.DedupWindowSeconds)
	}
	if c.Fanout != 3 {
		t.Errorf("Fanout = %d, want 3", c.Fanout)
	}
	if c.AlertTTLSeconds != 120 {
		t.Errorf("AlertTTLSeconds = %d, want 120", c.AlertTTLSeconds)
	}
	if c.KafkaTopic != "warden.notifications" {
		t.Errorf("KafkaTopic = %q, want warden.notifications", c.KafkaTopic)
	}
	if c.GuardStalenessSeconds != 0 {
		t.Errorf("GuardStalenessSeconds = %d, want 0", c.GuardStalenessSeconds)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-fanout", "5",
		"-dedup-window-seconds", "60",
		"-kafka-brokers", "broker-1:9092,broker-2:9092",
		"-guard-staleness-seconds", "600",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.Fanout != 5 {
		t.Errorf("Fanout = %d, want 5", c.Fanout)
	}
	if c.DedupWindowSeconds != 60 {
		t.Errorf("DedupWindowSeconds = %d, want 60", c.DedupWindowSeconds)
	}
	if c.KafkaBrokers != "broker-1:9092,broker-2:9092" {
		t.Errorf("KafkaBrokers = %q", c.KafkaBrokers)
	}
	if c.GuardStalenessSeconds != 600 {
		t.Errorf("GuardStalenessSeconds = %d, want 600", c.GuardStalenessSeconds)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero drain", func(c *Config) { c.DrainSeconds = 0 }, "DRAIN_SECONDS"},
		{"drain too large", func(c *Config) { c.DrainSeconds = 301 }, "DRAIN_SECONDS"},
		{"budget not above drain", func(c *Config) { c.ShutdownBudgetSeconds = 60 }, "must be greater than DRAIN_SECONDS"},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, "HTTP_PORT"},
		{"zero dedup window", func(c *Config) { c.DedupWindowSeconds = 0 }, "DEDUP_WINDOW_SECONDS"},
		{"zero fanout", func(c *Config) { c.Fanout = 0 }, "FANOUT"},
		{"fanout too large", func(c *Config) { c.Fanout = 21 }, "FANOUT"},
		{"zero alert ttl", func(c *Config) { c.AlertTTLSeconds = 0 }, "ALERT_TTL_SECONDS"},
		{"negative fallback pool", func(c *Config) { c.FallbackPool = -1 }, "FALLBACK_POOL"},
		{"negative staleness", func(c *Config) { c.GuardStalenessSeconds = -1 }, "GUARD_STALENESS_SECONDS"},
		{"negative repeat threshold", func(c *Config) { c.ReportRepeatThreshold = -1 }, "REPORT_REPEAT_THRESHOLD"},
		{"api key without model", func(c *Config) { c.ClaudeAPIKey = "sk-x"; c.ClaudeModel = "" }, "CLAUDE_MODEL"},
		{"chat url without token", func(c *Config) { c.ChatBaseURL = "https://chat" }, "CHAT_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	c := validBase()
	c.DrainSeconds = 0
	c.Fanout = 0
	c.AlertTTLSeconds = 0

	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"DRAIN_SECONDS", "FANOUT", "ALERT_TTL_SECONDS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{" , ,", nil},
	}
	for _, tt := range tests {
		got := SplitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("SplitList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
