package slotkeeper

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown config keys:\n%s", strict.String())
		}
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Bot      BotConfig      `toml:"bot"`
	DB       DBConfig       `toml:"db"`
	Roles    RolesConfig    `toml:"roles"`
	Channels ChannelsConfig `toml:"channels"`
	Plans    []PlanConfig   `toml:"plans"`
	Schedule ScheduleConfig `toml:"schedule"`
	Policy   PolicyConfig   `toml:"policy"`
	Spaces   SpacesConfig   `toml:"spaces"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type BotConfig struct {
	Token     string         `toml:"token"`
	GuildID   snowflake.ID   `toml:"guild_id"`
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
}

const (
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

type DBConfig struct {
	// Driver is "postgres" or "file".
	Driver   string `toml:"driver"`
	Path     string `toml:"path"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

// RolesConfig maps the symbolic roles to guild role IDs. Zero IDs are skipped.
type RolesConfig struct {
	Access snowflake.ID            `toml:"access"`
	OnHold snowflake.ID            `toml:"on_hold"`
	Staff  snowflake.ID            `toml:"staff"`
	Admin  snowflake.ID            `toml:"admin"`
	Member snowflake.ID            `toml:"member"`
	Hidden snowflake.ID            `toml:"hidden"`
	Plans  map[string]snowflake.ID `toml:"plans"`
}

type ChannelsConfig struct {
	AdminLog        snowflake.ID            `toml:"admin_log"`
	PingReset       snowflake.ID            `toml:"ping_reset"`
	RecoveryPanel   snowflake.ID            `toml:"recovery_panel"`
	RevokedCategory snowflake.ID            `toml:"revoked_category"`
	Categories      map[string]snowflake.ID `toml:"categories"`
}

type PlanConfig struct {
	Name     string   `toml:"name"`
	Everyone int      `toml:"everyone"`
	Here     int      `toml:"here"`
	Category string   `toml:"category"`
	Roles    []string `toml:"roles"`
}

type ScheduleConfig struct {
	ExpiryInterval  Duration `toml:"expiry_interval"`
	WarningInterval Duration `toml:"warning_interval"`
	WarningWindow   Duration `toml:"warning_window"`
	ResetTime       string   `toml:"reset_time"`
	ResetTimezone   string   `toml:"reset_timezone"`
}

type PolicyConfig struct {
	PauseExpiryOnHold bool     `toml:"pause_expiry_on_hold"`
	PurgeOnReset      *bool    `toml:"purge_on_reset"`
	PingNoticeTTL     Duration `toml:"ping_notice_ttl"`
}

type SpacesConfig struct {
	Key      string   `toml:"key"`
	Secret   string   `toml:"secret"`
	Region   string   `toml:"region"`
	Bucket   string   `toml:"bucket"`
	Prefix   string   `toml:"prefix"`
	Interval Duration `toml:"interval"`
}

func (s SpacesConfig) Enabled() bool {
	return s.Key != "" && s.Secret != "" && s.Bucket != ""
}

// Duration decodes TOML strings such as "90s" or "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Validate fills defaults and rejects configurations the bot cannot run with.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}

	switch c.DB.Driver {
	case "":
		c.DB.Driver = DriverPostgres
	case DriverPostgres, DriverFile:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverFile, c.DB.Driver)
	}
	if c.DB.Driver == DriverFile && c.DB.Path == "" {
		c.DB.Path = "data/slots.json"
	}
	if c.DB.Driver == DriverPostgres {
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.PoolSize == 0 {
			c.DB.PoolSize = 10
		}
	}

	if len(c.Plans) == 0 {
		c.Plans = DefaultPlans()
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("plans: %w", err)
	}

	if c.Schedule.ExpiryInterval.Duration <= 0 {
		c.Schedule.ExpiryInterval.Duration = config.DefaultExpiryInterval
	}
	if c.Schedule.WarningInterval.Duration <= 0 {
		c.Schedule.WarningInterval.Duration = config.DefaultWarningInterval
	}
	if c.Schedule.WarningWindow.Duration <= 0 {
		c.Schedule.WarningWindow.Duration = config.DefaultWarningWindow
	}
	if c.Schedule.ResetTime == "" {
		c.Schedule.ResetTime = config.DefaultResetTime
	}
	if c.Schedule.ResetTimezone == "" {
		c.Schedule.ResetTimezone = config.DefaultResetTimezone
	}
	if _, _, err := c.Schedule.ResetClock(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Schedule.ResetTimezone); err != nil {
		return fmt.Errorf("schedule.reset_timezone: %w", err)
	}

	if c.Policy.PingNoticeTTL.Duration <= 0 {
		c.Policy.PingNoticeTTL.Duration = config.DefaultPingNoticeTTL
	}
	if c.Policy.PurgeOnReset == nil {
		enabled := true
		c.Policy.PurgeOnReset = &enabled
	}

	if c.Spaces.Interval.Duration <= 0 {
		c.Spaces.Interval.Duration = config.DefaultBackupInterval
	}
	if c.Spaces.Prefix == "" {
		c.Spaces.Prefix = "slotkeeper/backups"
	}
	return nil
}

// ResetClock parses schedule.reset_time as HH:MM.
func (s ScheduleConfig) ResetClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.ResetTime))
	if err != nil {
		return 0, 0, fmt.Errorf("schedule.reset_time must be HH:MM, got %q", s.ResetTime)
	}
	return t.Hour(), t.Minute(), nil
}

// DefaultPlans are the tiers the server launched with.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{Name: "elite", Everyone: 1, Here: 2, Category: "elite", Roles: []string{"elite"}},
		{Name: "standard", Everyone: 0, Here: 2, Category: "standard", Roles: []string{"standard"}},
		{Name: "trial", Everyone: 0, Here: 1, Category: "standard"},
	}
}

// Catalog builds the plan catalog the controller validates plans against.
func (c *Config) Catalog() (*slots.Catalog, error) {
	specs := make([]slots.PlanSpec, 0, len(c.Plans))
	for _, p := range c.Plans {
		roles := make([]slots.Role, 0, len(p.Roles))
		for _, r := range p.Roles {
			roles = append(roles, slots.Role(strings.ToLower(strings.TrimSpace(r))))
		}
		specs = append(specs, slots.PlanSpec{
			Name:     slots.ParsePlan(p.Name),
			Limits:   slots.Limits{Everyone: p.Everyone, Here: p.Here},
			Category: slots.Category(strings.ToLower(strings.TrimSpace(p.Category))),
			Roles:    roles,
		})
	}
	return slots.NewCatalog(specs...)
}

// ControllerOptions translates the policy and schedule sections.
func (c *Config) ControllerOptions() []slots.Option {
	return []slots.Option{
		slots.PauseExpiryOnHold(c.Policy.PauseExpiryOnHold),
		slots.WarningWindow(c.Schedule.WarningWindow.Duration),
		slots.PingNoticeTTL(c.Policy.PingNoticeTTL.Duration),
		slots.PurgeOnReset(c.Policy.PurgeOnReset == nil || *c.Policy.PurgeOnReset),
	}
}
