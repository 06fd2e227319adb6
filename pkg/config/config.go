package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// SourceConfig holds the per-source settings an adapter needs. Everything a
// source-specific extractor should not hardcode lives here: endpoints,
// politeness limits, and the static facts about the agency (tags,
// headquarters coordinates) that the normalizer stamps onto every record.
type SourceConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	Agency         string `yaml:"agency"`
	AgencyFullName string `yaml:"agency_full_name"`

	LocationName    string  `yaml:"location_name"`
	LocationAddress string  `yaml:"location_address"`
	LocationCity    string  `yaml:"location_city"`
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`

	IssueTags []string `yaml:"issue_tags"`

	// RequestsPerSecond bounds politeness against the source site.
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Config is the full scraper configuration: the source registry plus store
// credentials. Credentials come from the environment, never from the file.
type Config struct {
	Sources map[string]SourceConfig `yaml:"sources"`

	// AdapterTimeout bounds one adapter's whole run so a hung source cannot
	// stall the rest of the schedule.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	Store StoreConfig `yaml:"-"`
}

// StoreConfig carries the persistence credentials read from the environment.
type StoreConfig struct {
	DatabaseURL      string
	SupabaseURL      string
	SupabaseKey      string
	SupabasePassword string
}

// Default returns the compiled-in configuration for the four Michigan
// sources. A config file only needs to override what differs.
func Default() *Config {
	return &Config{
		AdapterTimeout: 5 * time.Minute,
		Sources: map[string]SourceConfig{
			"mpsc": {
				Enabled:         true,
				URL:             "https://www.michigan.gov/mpsc/commission/events",
				Agency:          "MPSC",
				AgencyFullName:  "Michigan Public Service Commission",
				LocationName:    "MPSC Headquarters",
				LocationAddress: "7109 W. Saginaw Highway",
				LocationCity:    "Lansing",
				Latitude:        42.7325,
				Longitude:       -84.6358,
				IssueTags:       []string{"dte_energy", "utilities", "energy_policy"},
				RequestsPerSecond: 0.5,
				Timeout:           30 * time.Second,
			},
			"glwa": {
				Enabled:         true,
				URL:             "https://glwater.legistar.com/Calendar.aspx",
				Agency:          "GLWA",
				AgencyFullName:  "Great Lakes Water Authority",
				LocationName:    "Water Board Building",
				LocationAddress: "735 Randolph Street",
				LocationCity:    "Detroit",
				Latitude:        42.3350,
				Longitude:       -83.0456,
				IssueTags:       []string{"drinking_water", "water_quality", "infrastructure"},
				RequestsPerSecond: 1,
				Timeout:           20 * time.Second,
			},
			"detroit": {
				Enabled:         true,
				URL:             "https://detroitmi.legistar.com/Calendar.aspx",
				Agency:          "Detroit City Council",
				AgencyFullName:  "Detroit City Council",
				LocationName:    "Coleman A. Young Municipal Center",
				LocationAddress: "2 Woodward Ave",
				LocationCity:    "Detroit",
				Latitude:        42.3293,
				Longitude:       -83.0448,
				IssueTags:       []string{"local_government", "detroit"},
				RequestsPerSecond: 1,
				Timeout:           20 * time.Second,
			},
			"egle": {
				Enabled:         true,
				URL:             "https://www.trumba.com/calendars/deq-events.rss",
				Agency:          "EGLE",
				AgencyFullName:  "Michigan Department of Environment, Great Lakes, and Energy",
				LocationName:    "EGLE Headquarters",
				LocationAddress: "525 W. Allegan St.",
				LocationCity:    "Lansing",
				Latitude:        42.7335,
				Longitude:       -84.5555,
				IssueTags:       []string{"environment"},
				RequestsPerSecond: 1,
				Timeout:           30 * time.Second,
			},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables (credentials). path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		overlay := &Config{}
		if err := yaml.Unmarshal(data, overlay); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.merge(overlay)
	}

	cfg.Store = StoreConfig{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SupabaseURL:      os.Getenv("SUPABASE_URL"),
		SupabaseKey:      os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabasePassword: os.Getenv("SUPABASE_DB_PASSWORD"),
	}

	return cfg, nil
}

// merge overlays file-provided values onto the defaults. Sources present in
// the file replace the default entry wholesale; that keeps the semantics
// obvious at the cost of repeating unchanged fields in the file.
func (c *Config) merge(overlay *Config) {
	if overlay.AdapterTimeout > 0 {
		c.AdapterTimeout = overlay.AdapterTimeout
	}
	for key, sc := range overlay.Sources {
		c.Sources[key] = sc
	}
}

// Source returns the named source config.
func (c *Config) Source(key string) (SourceConfig, error) {
	sc, ok := c.Sources[key]
	if !ok {
		return SourceConfig{}, fmt.Errorf("unknown source %q", key)
	}
	return sc, nil
}
