// Package config loads the front-desk daemon configuration from a YAML (or
// JSON) file and turns it into the injected settings the engine consumes.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clintariac/frontdesk/internal/schedule"
)

// HoursConfig describes the clinic's opening window.
type HoursConfig struct {
	OpenTime   string   `yaml:"open_time" json:"open_time"`       // "HH:MM"
	CloseTime  string   `yaml:"close_time" json:"close_time"`     // "HH:MM"
	DaysOfWeek []string `yaml:"days_of_week" json:"days_of_week"` // "monday", ...
}

// IntakeConfig configures the ticket intake channel. An empty AMQPURL runs
// the daemon with the in-process queue gateway.
type IntakeConfig struct {
	AMQPURL  string `yaml:"amqp_url" json:"amqp_url"`
	Queue    string `yaml:"queue" json:"queue"`
	Prefetch int    `yaml:"prefetch" json:"prefetch"`
	Dedupe   bool   `yaml:"dedupe" json:"dedupe"`
}

// Config is the daemon configuration file.
type Config struct {
	ListenPort             int          `yaml:"listen_port" json:"listen_port"`
	StoragePath            string       `yaml:"storage_path" json:"storage_path"`
	PollIntervalSeconds    int          `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	SlotGranularityMinutes int          `yaml:"slot_granularity_minutes" json:"slot_granularity_minutes"`
	BookingLookaheadDays   int          `yaml:"booking_lookahead_days" json:"booking_lookahead_days"`
	BusinessHours          HoursConfig  `yaml:"business_hours" json:"business_hours"`
	Intake                 IntakeConfig `yaml:"intake" json:"intake"`
	WebhookURL             string       `yaml:"webhook_url" json:"webhook_url"`
	Verbose                bool         `yaml:"verbose" json:"verbose"`
}

// Default returns the configuration used when no file is given: a weekday
// clinic, 30 minute slots, 30 day horizon, 30 second polling.
func Default() *Config {
	return &Config{
		ListenPort:             8732,
		StoragePath:            "frontdesk.json",
		PollIntervalSeconds:    30,
		SlotGranularityMinutes: 30,
		BookingLookaheadDays:   30,
		BusinessHours: HoursConfig{
			OpenTime:   "08:30",
			CloseTime:  "17:30",
			DaysOfWeek: []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		},
		Intake: IntakeConfig{Queue: "frontdesk.intake"},
	}
}

// Load reads the config file at path. Missing fields keep their defaults.
// Files ending in .json are parsed as JSON, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path is required")
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}
	if c.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("slot_granularity_minutes must be positive")
	}
	if c.BookingLookaheadDays <= 0 {
		return fmt.Errorf("booking_lookahead_days must be positive")
	}
	cal, err := c.Calendar()
	if err != nil {
		return err
	}
	return cal.Validate()
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Calendar builds the schedule calendar from the configured business hours,
// slot granularity, and lookahead horizon.
func (c *Config) Calendar() (schedule.Calendar, error) {
	open, err := schedule.ParseClockTime(c.BusinessHours.OpenTime)
	if err != nil {
		return schedule.Calendar{}, fmt.Errorf("business_hours.open_time: %w", err)
	}
	closeMin, err := schedule.ParseClockTime(c.BusinessHours.CloseTime)
	if err != nil {
		return schedule.Calendar{}, fmt.Errorf("business_hours.close_time: %w", err)
	}

	days := make(map[time.Weekday]bool, len(c.BusinessHours.DaysOfWeek))
	for _, name := range c.BusinessHours.DaysOfWeek {
		day, err := schedule.ParseWeekday(name)
		if err != nil {
			return schedule.Calendar{}, fmt.Errorf("business_hours.days_of_week: %w", err)
		}
		days[day] = true
	}

	return schedule.Calendar{
		Hours:   schedule.Hours{Open: open, Close: closeMin, Days: days},
		Slot:    time.Duration(c.SlotGranularityMinutes) * time.Minute,
		Horizon: time.Duration(c.BookingLookaheadDays) * 24 * time.Hour,
	}, nil
}
