package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/docket/internal/ballot"
	"github.com/dyluth/docket/internal/meeting"
)

// DocketConfig represents the top-level docket.yml configuration
type DocketConfig struct {
	Version    string            `yaml:"version"`
	IRC        IRCConfig         `yaml:"irc"`
	Auth       AuthConfig        `yaml:"auth"`
	Store      StoreConfig       `yaml:"store"`
	Session    *SessionConfig    `yaml:"session,omitempty"`
	Transcript *TranscriptConfig `yaml:"transcript,omitempty"`
	Health     *HealthConfig     `yaml:"health,omitempty"`
}

// IRCConfig specifies the chat connection
type IRCConfig struct {
	Server   string `yaml:"server" env:"DOCKET_IRC_SERVER"` // host:port
	TLS      bool   `yaml:"tls" env:"DOCKET_IRC_TLS"`
	Nick     string `yaml:"nick" env:"DOCKET_IRC_NICK"`
	Password string `yaml:"password,omitempty" env:"DOCKET_IRC_PASSWORD"`
	Channel  string `yaml:"channel" env:"DOCKET_IRC_CHANNEL"`
	Sigil    string `yaml:"sigil,omitempty" env:"DOCKET_IRC_SIGIL"` // default ","
}

// AuthConfig decides who may run chair commands
type AuthConfig struct {
	Mode             string        `yaml:"mode" env:"DOCKET_AUTH_MODE"` // "static" or "nickserv"
	Chairs           []string      `yaml:"chairs" env:"DOCKET_CHAIRS" envSeparator:","`
	Service          string        `yaml:"service,omitempty" env:"DOCKET_AUTH_SERVICE"` // default NickServ
	ReverifyInterval time.Duration `yaml:"reverify_interval,omitempty" env:"DOCKET_AUTH_REVERIFY_INTERVAL"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver    string `yaml:"driver" env:"DOCKET_STORE_DRIVER"` // "redis" or "bolt"
	RedisURL  string `yaml:"redis_url,omitempty" env:"REDIS_URL"`
	Namespace string `yaml:"namespace,omitempty" env:"DOCKET_NAMESPACE"`
	BoltPath  string `yaml:"bolt_path,omitempty" env:"DOCKET_BOLT_PATH"`
}

// SessionConfig overrides meeting timings. Zero values keep the defaults.
type SessionConfig struct {
	ChampionCall       time.Duration `yaml:"champion_call,omitempty"`
	DebateTime         time.Duration `yaml:"debate_time,omitempty"`
	ReviewPerItem      time.Duration `yaml:"review_per_item,omitempty"`
	ReviewMin          time.Duration `yaml:"review_min,omitempty"`
	GroupDebatePerItem time.Duration `yaml:"group_debate_per_item,omitempty"`
	GroupDebateMin     time.Duration `yaml:"group_debate_min,omitempty"`
	AcceptThreshold    float64       `yaml:"accept_threshold,omitempty"`  // percent
	DamagedThreshold   float64       `yaml:"damaged_threshold,omitempty"` // percent
	AcceptanceWarning  float64       `yaml:"acceptance_warning,omitempty"`
	AgendaSize         int           `yaml:"agenda_size,omitempty"`
	RulesURL           string        `yaml:"rules_url,omitempty"`
	ProcessURL         string        `yaml:"process_url,omitempty"`
}

// TranscriptConfig controls the transcript buffer
type TranscriptConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval,omitempty" env:"DOCKET_TRANSCRIPT_FLUSH_INTERVAL"`
}

// HealthConfig controls the /healthz listener
type HealthConfig struct {
	Addr string `yaml:"addr,omitempty" env:"DOCKET_HEALTH_ADDR"` // empty disables
}

// Validate performs strict validation on the configuration and fills defaults
func (c *DocketConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.IRC.Validate(); err != nil {
		return err
	}

	switch c.Auth.Mode {
	case "":
		c.Auth.Mode = "static"
	case "static", "nickserv":
	default:
		return fmt.Errorf("invalid auth.mode: %s (must be 'static' or 'nickserv')", c.Auth.Mode)
	}
	if len(c.Auth.Chairs) == 0 {
		return fmt.Errorf("auth.chairs must name at least one chair")
	}
	if c.Auth.ReverifyInterval < 0 {
		return fmt.Errorf("auth.reverify_interval must be >= 0, got %s", c.Auth.ReverifyInterval)
	}
	if c.Auth.Mode == "nickserv" && c.Auth.ReverifyInterval == 0 {
		c.Auth.ReverifyInterval = 10 * time.Minute
	}

	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Session == nil {
		c.Session = &SessionConfig{}
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}

	if c.Transcript == nil {
		c.Transcript = &TranscriptConfig{}
	}
	if c.Transcript.FlushInterval == 0 {
		c.Transcript.FlushInterval = 10 * time.Second
	}
	if c.Transcript.FlushInterval < time.Second {
		return fmt.Errorf("transcript.flush_interval must be at least 1s, got %s", c.Transcript.FlushInterval)
	}

	if c.Health == nil {
		c.Health = &HealthConfig{}
	}
	return nil
}

// Validate checks the IRC section
func (i *IRCConfig) Validate() error {
	if i.Server == "" {
		return fmt.Errorf("irc.server is required")
	}
	if !strings.Contains(i.Server, ":") {
		return fmt.Errorf("irc.server must be host:port, got %s", i.Server)
	}
	if i.Nick == "" {
		return fmt.Errorf("irc.nick is required")
	}
	if !strings.HasPrefix(i.Channel, "#") && !strings.HasPrefix(i.Channel, "&") {
		return fmt.Errorf("irc.channel must start with # or &, got %q", i.Channel)
	}
	if i.Sigil == "" {
		i.Sigil = ","
	}
	if strings.ContainsAny(i.Sigil, " \t") {
		return fmt.Errorf("irc.sigil must not contain whitespace")
	}
	return nil
}

// Validate checks the store section
func (s *StoreConfig) Validate() error {
	if s.Namespace == "" {
		s.Namespace = "docket"
	}
	switch s.Driver {
	case "", "redis":
		s.Driver = "redis"
		if s.RedisURL == "" {
			s.RedisURL = "redis://localhost:6379/0"
		}
	case "bolt":
		if s.BoltPath == "" {
			return fmt.Errorf("store.bolt_path is required when store.driver is 'bolt'")
		}
	default:
		return fmt.Errorf("invalid store.driver: %s (must be 'redis' or 'bolt')", s.Driver)
	}
	return nil
}

// Validate checks the session overrides
func (s *SessionConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"champion_call":         s.ChampionCall,
		"debate_time":           s.DebateTime,
		"review_per_item":       s.ReviewPerItem,
		"review_min":            s.ReviewMin,
		"group_debate_per_item": s.GroupDebatePerItem,
		"group_debate_min":      s.GroupDebateMin,
	} {
		if d < 0 {
			return fmt.Errorf("session.%s must be >= 0, got %s", name, d)
		}
	}

	th := s.thresholds()
	if th.Accept <= 0 || th.Accept > 100 || th.Damaged < 0 || th.Damaged > th.Accept {
		return fmt.Errorf("session thresholds must satisfy 0 <= damaged (%.1f) <= accept (%.1f) <= 100", th.Damaged, th.Accept)
	}
	if s.AcceptanceWarning < 0 || s.AcceptanceWarning > 100 {
		return fmt.Errorf("session.acceptance_warning must be a percentage, got %.1f", s.AcceptanceWarning)
	}
	if s.AgendaSize < 0 {
		return fmt.Errorf("session.agenda_size must be >= 0, got %d", s.AgendaSize)
	}
	return nil
}

func (s *SessionConfig) thresholds() ballot.Thresholds {
	th := ballot.DefaultThresholds
	if s.AcceptThreshold != 0 {
		th.Accept = s.AcceptThreshold
	}
	if s.DamagedThreshold != 0 {
		th.Damaged = s.DamagedThreshold
	}
	return th
}

// Settings overlays the configured values onto meeting.DefaultSettings.
func (s *SessionConfig) Settings() meeting.Settings {
	out := meeting.DefaultSettings()
	if s == nil {
		return out
	}
	setDuration(&out.ChampionCall, s.ChampionCall)
	setDuration(&out.DebateTime, s.DebateTime)
	setDuration(&out.ReviewPerItem, s.ReviewPerItem)
	setDuration(&out.ReviewMin, s.ReviewMin)
	setDuration(&out.GroupDebatePerItem, s.GroupDebatePerItem)
	setDuration(&out.GroupDebateMin, s.GroupDebateMin)
	out.Thresholds = s.thresholds()
	if s.AcceptanceWarning != 0 {
		out.AcceptanceWarning = s.AcceptanceWarning
	}
	if s.AgendaSize != 0 {
		out.AgendaSize = s.AgendaSize
	}
	out.RulesURL = s.RulesURL
	out.ProcessURL = s.ProcessURL
	return out
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Load reads docket.yml from the specified path, applies environment overrides and validates
func Load(path string) (*DocketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config DocketConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ParseEnv(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ParseEnv overlays environment variables onto target. Unset variables leave fields alone.
func ParseEnv(target *DocketConfig) error {
	if target.Transcript == nil {
		target.Transcript = &TranscriptConfig{}
	}
	if target.Health == nil {
		target.Health = &HealthConfig{}
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
