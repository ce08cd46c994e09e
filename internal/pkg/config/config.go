package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Source   SourceConfig   `yaml:"source"`
	Engine   EngineConfig   `yaml:"engine"`
	Rules    RulesConfig    `yaml:"rules"`
	Ticket   TicketConfig   `yaml:"ticket"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Access   AccessConfig   `yaml:"access"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	CORSOrigins       []string      `yaml:"cors_origins"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StatsTTL time.Duration `yaml:"stats_ttl"` // team stats snapshot lifetime
	OddsTTL  time.Duration `yaml:"odds_ttl"`  // odds payload lifetime
}

// SourceConfig points at the external sports-data provider.
type SourceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Burst          int           `yaml:"burst"`
	BreakerFails   uint32        `yaml:"breaker_fails"`   // consecutive failures that open the breaker
	BreakerTimeout time.Duration `yaml:"breaker_timeout"` // how long the breaker stays open
}

type EngineConfig struct {
	Tau           float64              `yaml:"tau"`            // prior strength in matches
	HomeAdvantage float64              `yaml:"home_advantage"` // multiplier on home goal rate
	LeaguePriors  map[string]float64   `yaml:"league_priors"`  // per-team per-match prior by category
	Dispersion    map[string]float64   `yaml:"dispersion"`     // negative binomial r by category
	Lines         map[string][]float64 `yaml:"lines"`          // lines modeled even without a book price
	MarketAliases map[string][]string  `yaml:"market_aliases"` // category -> bookmaker market names
	LineTolerance float64              `yaml:"line_tolerance"`
	TopN          int                  `yaml:"top_n"`
	Workers       int                  `yaml:"workers"`
	PicksMaxAge   time.Duration        `yaml:"picks_max_age"` // stored picks older than this are recomputed
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	DefaultVersion string `yaml:"default_version"`
}

type TicketConfig struct {
	MaxAttempts        int                    `yaml:"max_attempts"`
	OvershootTolerance float64                `yaml:"overshoot_tolerance"`
	RiskProfiles       map[string]RiskProfile `yaml:"risk_profiles"`
}

type RiskProfile struct {
	MinLegOdds    float64 `yaml:"min_leg_odds"`
	MaxLegOdds    float64 `yaml:"max_leg_odds"`
	PreferredOdds float64 `yaml:"preferred_odds"`
}

type AlertsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	Lookahead        time.Duration `yaml:"lookahead"` // scan fixtures kicking off within this window
	EdgeThreshold    float64       `yaml:"edge_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	MinIncrease      float64       `yaml:"min_increase"` // edge growth that re-alerts inside the cooldown
	TelegramBotToken string        `yaml:"telegram_bot_token"`
	TelegramChatID   int64         `yaml:"telegram_chat_id"`
}

type AccessConfig struct {
	Tokens     map[string]string `yaml:"tokens"`      // api token -> user id
	Admins     []string          `yaml:"admins"`      // user ids that bypass entitlements
	Subscribed []string          `yaml:"subscribed"`  // user ids with a paid plan
	TrialUntil map[string]string `yaml:"trial_until"` // user id -> RFC3339 expiry
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // optional JSON log file
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies env overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SOURCE_API_KEY"); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Alerts.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Alerts.TelegramChatID = id
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Redis.StatsTTL <= 0 {
		c.Redis.StatsTTL = 6 * time.Hour
	}
	if c.Redis.OddsTTL <= 0 {
		c.Redis.OddsTTL = 5 * time.Minute
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.RequestsPerSec <= 0 {
		c.Source.RequestsPerSec = 5
	}
	if c.Source.Burst <= 0 {
		c.Source.Burst = 1
	}
	if c.Source.BreakerFails == 0 {
		c.Source.BreakerFails = 5
	}
	if c.Source.BreakerTimeout <= 0 {
		c.Source.BreakerTimeout = 30 * time.Second
	}

	e := &c.Engine
	if e.Tau == 0 {
		e.Tau = 10
	}
	if e.HomeAdvantage == 0 {
		e.HomeAdvantage = 1.06
	}
	if e.LeaguePriors == nil {
		e.LeaguePriors = map[string]float64{}
	}
	for cat, v := range defaultLeaguePriors {
		if _, ok := e.LeaguePriors[cat]; !ok {
			e.LeaguePriors[cat] = v
		}
	}
	if e.Dispersion == nil {
		e.Dispersion = map[string]float64{}
	}
	for cat, v := range defaultDispersion {
		if _, ok := e.Dispersion[cat]; !ok {
			e.Dispersion[cat] = v
		}
	}
	if e.Lines == nil {
		e.Lines = map[string][]float64{}
	}
	for cat, v := range defaultLines {
		if _, ok := e.Lines[cat]; !ok {
			e.Lines[cat] = v
		}
	}
	if e.LineTolerance <= 0 {
		e.LineTolerance = 0.01
	}
	if e.TopN <= 0 {
		e.TopN = 20
	}
	if e.Workers <= 0 {
		e.Workers = 8
	}
	if e.PicksMaxAge <= 0 {
		e.PicksMaxAge = c.Redis.StatsTTL
	}

	if c.Ticket.MaxAttempts <= 0 {
		c.Ticket.MaxAttempts = 50
	}
	if c.Ticket.OvershootTolerance <= 0 {
		c.Ticket.OvershootTolerance = 0.05
	}
	if len(c.Ticket.RiskProfiles) == 0 {
		c.Ticket.RiskProfiles = map[string]RiskProfile{
			"safe":     {MinLegOdds: 1.15, MaxLegOdds: 1.60, PreferredOdds: 1.35},
			"balanced": {MinLegOdds: 1.30, MaxLegOdds: 2.20, PreferredOdds: 1.70},
			"risky":    {MinLegOdds: 1.60, MaxLegOdds: 4.00, PreferredOdds: 2.40},
		}
	}

	if c.Alerts.Interval <= 0 {
		c.Alerts.Interval = 5 * time.Minute
	}
	if c.Alerts.Lookahead <= 0 {
		c.Alerts.Lookahead = 48 * time.Hour
	}
	if c.Alerts.EdgeThreshold <= 0 {
		c.Alerts.EdgeThreshold = 0.05
	}
	if c.Alerts.Cooldown <= 0 {
		c.Alerts.Cooldown = time.Hour
	}
	if c.Alerts.MinIncrease <= 0 {
		c.Alerts.MinIncrease = 0.02
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.Tau <= 0 {
		return fmt.Errorf("engine.tau must be > 0, got %v", c.Engine.Tau)
	}
	if c.Engine.HomeAdvantage < 1 {
		return fmt.Errorf("engine.home_advantage must be >= 1, got %v", c.Engine.HomeAdvantage)
	}
	for cat, r := range c.Engine.Dispersion {
		if r <= 0 {
			return fmt.Errorf("engine.dispersion[%s] must be > 0, got %v", cat, r)
		}
	}
	if c.Rules.Path == "" {
		return fmt.Errorf("rules.path is required")
	}
	for name, p := range c.Ticket.RiskProfiles {
		if p.MinLegOdds <= 1 || p.MaxLegOdds < p.MinLegOdds {
			return fmt.Errorf("ticket.risk_profiles[%s]: invalid leg odds bounds [%v, %v]", name, p.MinLegOdds, p.MaxLegOdds)
		}
		if p.PreferredOdds < p.MinLegOdds || p.PreferredOdds > p.MaxLegOdds {
			return fmt.Errorf("ticket.risk_profiles[%s]: preferred_odds %v outside leg bounds", name, p.PreferredOdds)
		}
	}
	for user, until := range c.Access.TrialUntil {
		if _, err := time.Parse(time.RFC3339, until); err != nil {
			return fmt.Errorf("access.trial_until[%s]: %w", user, err)
		}
	}
	return nil
}

var defaultLeaguePriors = map[string]float64{
	"goals":    1.35,
	"cards":    2.10,
	"corners":  4.90,
	"fouls":    11.50,
	"offsides": 1.90,
}

var defaultDispersion = map[string]float64{
	"cards":    6,
	"corners":  12,
	"fouls":    25,
	"offsides": 5,
}

var defaultLines = map[string][]float64{
	"goals":    {0.5, 1.5, 2.5, 3.5},
	"cards":    {2.5, 3.5, 4.5, 5.5},
	"corners":  {7.5, 8.5, 9.5, 10.5},
	"fouls":    {19.5, 21.5, 23.5, 25.5},
	"offsides": {2.5, 3.5, 4.5},
}
