package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. MEMOCAL_TIMEZONE.
const Prefix = "MEMOCAL"

// Backend selects the calendar store.
type Backend string

const (
	BackendGoogle Backend = "google"
	BackendICloud Backend = "icloud"
)

// Config holds the memocal configuration, read from MEMOCAL_* environment variables.
// For the icloud backend CalendarID is the calendar display name.
type Config struct {
	Backend    Backend `envconfig:"BACKEND" default:"google"`
	CalendarID string  `envconfig:"CALENDAR_ID" default:"primary"`
	TimeZone   string  `envconfig:"TIMEZONE" default:"America/Los_Angeles"`
	ListMax    int     `envconfig:"LIST_MAX" default:"10"`
	LogLevel   string  `envconfig:"LOG_LEVEL" default:"info"`

	// Google Calendar: either an OAuth user account or a service account key file
	GoogleClientID           string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret       string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleAccount            string `envconfig:"GOOGLE_ACCOUNT"`
	GoogleServiceAccountFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// CalDAV (iCloud by default)
	CalDAVEndpoint string `envconfig:"CALDAV_ENDPOINT" default:"https://caldav.icloud.com/"`
	ICloudUsername string `envconfig:"ICLOUD_USERNAME"`
	ICloudPassword string `envconfig:"ICLOUD_APP_SPECIFIC_PASSWORD"`

	// Speech to text
	STTURL      string        `envconfig:"STT_URL" default:"https://api.openai.com"`
	STTAPIKey   string        `envconfig:"STT_API_KEY"`
	STTModel    string        `envconfig:"STT_MODEL" default:"whisper-1"`
	STTLanguage string        `envconfig:"STT_LANGUAGE" default:"en"`
	STTTimeout  time.Duration `envconfig:"STT_TIMEOUT" default:"2m"`

	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	WorkDir    string `envconfig:"WORK_DIR"`
}

// New loads the configuration from the environment and validates it.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend-specific requirements and the timezone.
func (c *Config) Validate() error {
	c.Backend = Backend(strings.ToLower(string(c.Backend)))

	switch c.Backend {
	case BackendGoogle:
	case BackendICloud:
		if c.ICloudUsername == "" || c.ICloudPassword == "" {
			return fmt.Errorf("icloud backend requires %s_ICLOUD_USERNAME and %s_ICLOUD_APP_SPECIFIC_PASSWORD", Prefix, Prefix)
		}
		if c.CalendarID == "primary" {
			return fmt.Errorf("icloud backend requires %s_CALENDAR_ID to name a calendar", Prefix)
		}
	default:
		return fmt.Errorf("unsupported %s_BACKEND: %s", Prefix, c.Backend)
	}

	if c.CalendarID == "" {
		return fmt.Errorf("%s_CALENDAR_ID must not be empty", Prefix)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.ListMax <= 0 {
		return fmt.Errorf("%s_LIST_MAX must be positive, got %d", Prefix, c.ListMax)
	}
	return nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.TimeZone, err)
	}
	return loc, nil
}
