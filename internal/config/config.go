// Package config provides YAML-based configuration loading for Buildyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// PPA throttle scopes.
const (
	ScopeProcessor = "processor"
	ScopeGlobal    = "global"
)

// Config is the top-level Buildyard configuration, loaded from buildyard.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Manager   ManagerConfig   `yaml:"manager"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	Series    []SeriesConfig  `yaml:"series"`
	Archives  []ArchiveConfig `yaml:"archives"`
	Builders  []BuilderConfig `yaml:"builders"`
}

// DatabaseConfig selects and addresses the backing database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite file
}

// DispatchConfig tunes the candidate selector's PPA throttle.
type DispatchConfig struct {
	// PPAThrottleScope decides which builders count towards
	// PPAThrottleMinBuilders: "processor" counts builders for the
	// candidate's processor, "global" counts every automatic builder.
	PPAThrottleScope       string `yaml:"ppa_throttle_scope"`
	PPAThrottleMinBuilders int    `yaml:"ppa_throttle_min_builders"`
	PPAMaxBuildingPerArch  int    `yaml:"ppa_max_building_per_arch"`
}

// ManagerConfig holds build manager daemon settings.
type ManagerConfig struct {
	PollIntervalSec  int    `yaml:"poll_interval_sec"`
	FailureThreshold int    `yaml:"failure_threshold"`
	RescoreSchedule  string `yaml:"rescore_schedule"`
	SweepSchedule    string `yaml:"sweep_schedule"`
}

// PollInterval returns the poll interval as a duration.
func (m ManagerConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSec) * time.Second
}

// DashboardConfig holds status API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig holds chat notification settings. Empty tokens disable a
// platform.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SeriesConfig seeds a distro series and its architectures.
type SeriesConfig struct {
	Name          string       `yaml:"name"`
	Status        string       `yaml:"status"`
	Architectures []ArchConfig `yaml:"architectures"`
}

// ArchConfig seeds one architecture of a series.
type ArchConfig struct {
	Tag       string `yaml:"tag"`
	Processor string `yaml:"processor"`
}

// ArchiveConfig seeds an archive.
type ArchiveConfig struct {
	Name                        string `yaml:"name"`
	Owner                       string `yaml:"owner"`
	Purpose                     string `yaml:"purpose"`
	Private                     bool   `yaml:"private"`
	RequireVirtualized          bool   `yaml:"require_virtualized"`
	Disabled                    bool   `yaml:"disabled"`
	RelativeBuildScore          int    `yaml:"relative_build_score"`
	PermitObsoleteSeriesUploads bool   `yaml:"permit_obsolete_series_uploads"`
}

// BuilderConfig seeds a builder.
type BuilderConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Processor   string `yaml:"processor"`
	Virtualized bool   `yaml:"virtualized"`
	Manual      bool   `yaml:"manual"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = "buildyard.db"
		}
	case DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Database == "" {
			c.Database.Database = "buildyard"
		}
	}

	if c.Dispatch.PPAThrottleScope == "" {
		c.Dispatch.PPAThrottleScope = ScopeProcessor
	}
	if c.Dispatch.PPAThrottleMinBuilders == 0 {
		c.Dispatch.PPAThrottleMinBuilders = 2
	}
	if c.Dispatch.PPAMaxBuildingPerArch == 0 {
		c.Dispatch.PPAMaxBuildingPerArch = 1
	}

	if c.Manager.PollIntervalSec == 0 {
		c.Manager.PollIntervalSec = 15
	}
	if c.Manager.FailureThreshold == 0 {
		c.Manager.FailureThreshold = 5
	}
	if c.Manager.RescoreSchedule == "" {
		c.Manager.RescoreSchedule = "*/5 * * * *"
	}
	if c.Manager.SweepSchedule == "" {
		c.Manager.SweepSchedule = "0 * * * *"
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}

	for i := range c.Series {
		if c.Series[i].Status == "" {
			c.Series[i].Status = "DEVELOPMENT"
		}
		for j := range c.Series[i].Architectures {
			if c.Series[i].Architectures[j].Processor == "" {
				c.Series[i].Architectures[j].Processor = c.Series[i].Architectures[j].Tag
			}
		}
	}
	for i := range c.Archives {
		if c.Archives[i].Purpose == "" {
			c.Archives[i].Purpose = "PPA"
		}
	}
}

var (
	validSeriesStatuses = []string{"EXPERIMENTAL", "DEVELOPMENT", "FROZEN", "CURRENT", "SUPPORTED", "OBSOLETE"}
	validPurposes       = []string{"PRIMARY", "PPA", "PARTNER", "COPY"}
)

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be %s or %s", c.Database.Driver, DriverMySQL, DriverSQLite))
	}

	switch c.Dispatch.PPAThrottleScope {
	case ScopeProcessor, ScopeGlobal:
	default:
		errs = append(errs, fmt.Sprintf("dispatch.ppa_throttle_scope %q must be %s or %s", c.Dispatch.PPAThrottleScope, ScopeProcessor, ScopeGlobal))
	}
	if c.Dispatch.PPAThrottleMinBuilders < 1 {
		errs = append(errs, "dispatch.ppa_throttle_min_builders must be at least 1")
	}
	if c.Dispatch.PPAMaxBuildingPerArch < 1 {
		errs = append(errs, "dispatch.ppa_max_building_per_arch must be at least 1")
	}
	if c.Manager.PollIntervalSec < 0 {
		errs = append(errs, "manager.poll_interval_sec must not be negative")
	}
	if c.Manager.FailureThreshold < 1 {
		errs = append(errs, "manager.failure_threshold must be at least 1")
	}

	if (c.Notify.Slack.BotToken == "") != (c.Notify.Slack.ChannelID == "") {
		errs = append(errs, "notify.slack requires both bot_token and channel_id")
	}
	if (c.Notify.Discord.BotToken == "") != (c.Notify.Discord.ChannelID == "") {
		errs = append(errs, "notify.discord requires both bot_token and channel_id")
	}

	seriesNames := make(map[string]bool)
	for i, s := range c.Series {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("series[%d].name is required", i))
		} else if seriesNames[s.Name] {
			errs = append(errs, fmt.Sprintf("series[%d].name %q is duplicated", i, s.Name))
		}
		seriesNames[s.Name] = true
		if !contains(validSeriesStatuses, s.Status) {
			errs = append(errs, fmt.Sprintf("series[%d].status %q is invalid", i, s.Status))
		}
		for j, a := range s.Architectures {
			if a.Tag == "" {
				errs = append(errs, fmt.Sprintf("series[%d].architectures[%d].tag is required", i, j))
			}
		}
	}
	for i, a := range c.Archives {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("archives[%d].name is required", i))
		}
		if !contains(validPurposes, a.Purpose) {
			errs = append(errs, fmt.Sprintf("archives[%d].purpose %q is invalid", i, a.Purpose))
		}
	}
	for i, b := range c.Builders {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].name is required", i))
		}
		if b.Processor == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].processor is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
