package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/semmidev/backuppilot/internal/domain"
)

const EnvPrefix = "PILOT"

type Config struct {
	App          AppConfig           `mapstructure:"app"`
	Metadata     MetadataConfig      `mapstructure:"metadata"`
	Backup       BackupConfig        `mapstructure:"backup"`
	Scheduler    SchedulerConfig     `mapstructure:"scheduler"`
	Monitor      MonitorConfig       `mapstructure:"monitor"`
	Server       ServerConfig        `mapstructure:"server"`
	Notify       NotifyConfig        `mapstructure:"notify"`
	GoogleOAuth  GoogleOAuthConfig   `mapstructure:"google_oauth"`
	Databases    []DatabaseConfig    `mapstructure:"databases"`
	Destinations []DestinationConfig `mapstructure:"destinations"`
	Schedules    []ScheduleConfig    `mapstructure:"schedules"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type MetadataConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type BackupConfig struct {
	TempDir     string        `mapstructure:"temp_dir"`
	DumpTimeout time.Duration `mapstructure:"dump_timeout"`
	Compress    bool          `mapstructure:"compress"`

	// CompressionLevel is a gzip level, -2 (Huffman only) to 9.
	CompressionLevel int `mapstructure:"compression_level"`
}

type SchedulerConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type MonitorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	IntervalMinutes int           `mapstructure:"interval_minutes"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type GoogleOAuthConfig struct {
	ClientSecretFile string `mapstructure:"client_secret_file"`
	ListenAddr       string `mapstructure:"listen_addr"`
}

type DatabaseConfig struct {
	Name        string `mapstructure:"name"`
	Type        string `mapstructure:"type"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	Path        string `mapstructure:"path"`
	Destination string `mapstructure:"destination"`
	Enabled     bool   `mapstructure:"enabled"`
}

type DestinationConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	// Local
	Path string `mapstructure:"path"`

	// S3
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Bucket         string `mapstructure:"bucket"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	Prefix         string `mapstructure:"prefix"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`

	// SFTP
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	RemotePath string `mapstructure:"remote_path"`

	// Google Drive
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	FolderID     string `mapstructure:"folder_id"`

	// Azure Blob; prefix and endpoint are shared with S3
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Container        string `mapstructure:"container"`

	LiveProbe bool `mapstructure:"live_probe"`
}

type ScheduleConfig struct {
	Name          string   `mapstructure:"name"`
	Cron          string   `mapstructure:"cron"`
	RetentionDays int      `mapstructure:"retention_days"`
	Enabled       bool     `mapstructure:"enabled"`
	Databases     []string `mapstructure:"databases"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backuppilot")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("metadata.db_path", "data/pilot.db")
	v.SetDefault("backup.dump_timeout", 30*time.Minute)
	v.SetDefault("backup.compress", false)
	v.SetDefault("backup.compression_level", 9)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("monitor.probe_timeout", 5*time.Second)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("google_oauth.listen_addr", ":8085")
}

// Load reads the YAML file at path. Every key can be overridden from the
// environment, e.g. PILOT_METADATA_DB_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Metadata.DBPath == "" {
		return fmt.Errorf("metadata.db_path is required")
	}
	if c.Monitor.Enabled && c.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor.interval_minutes must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}

	destinations := make(map[string]bool, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.Name == "" {
			return fmt.Errorf("destinations[%d]: name is required", i)
		}
		if _, err := domain.ParseDestinationKind(d.Type); err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
		destinations[d.Name] = true
	}

	databases := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d]: name is required", i)
		}
		engine, err := domain.ParseEngine(db.Type)
		if err != nil {
			return fmt.Errorf("databases[%d]: %w", i, err)
		}
		if engine == domain.EngineSQLite && db.Path == "" {
			return fmt.Errorf("databases[%d]: path is required for sqlite", i)
		}
		if engine != domain.EngineSQLite && db.Host == "" {
			return fmt.Errorf("databases[%d]: host is required", i)
		}
		if db.Destination != "" && !destinations[db.Destination] {
			return fmt.Errorf("databases[%d]: unknown destination %q", i, db.Destination)
		}
		databases[db.Name] = true
	}

	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		if s.Cron == "" {
			return fmt.Errorf("schedules[%d]: cron is required", i)
		}
		for _, name := range s.Databases {
			if !databases[name] {
				return fmt.Errorf("schedules[%d]: unknown database %q", i, name)
			}
		}
	}

	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Target converts a seed entry. The destination binding is resolved by the
// caller.
func (d DatabaseConfig) Target() (*domain.DatabaseTarget, error) {
	engine, err := domain.ParseEngine(d.Type)
	if err != nil {
		return nil, err
	}
	return &domain.DatabaseTarget{
		Name:          d.Name,
		Engine:        engine,
		Host:          d.Host,
		Port:          d.Port,
		Username:      d.Username,
		Password:      d.Password,
		DatabaseName:  d.Database,
		Path:          d.Path,
		BackupEnabled: d.Enabled,
	}, nil
}

func (d DestinationConfig) Destination() (*domain.Destination, error) {
	kind, err := domain.ParseDestinationKind(d.Type)
	if err != nil {
		return nil, err
	}

	dest := &domain.Destination{Name: d.Name, Kind: kind}
	switch kind {
	case domain.KindLocal:
		dest.Config.Local = &domain.LocalConfig{Path: d.Path}
	case domain.KindObjectStore:
		dest.Config.ObjectStore = &domain.ObjectStoreConfig{
			Region:          d.Region,
			Endpoint:        d.Endpoint,
			Bucket:          d.Bucket,
			AccessKeyID:     d.AccessKey,
			SecretAccessKey: d.SecretKey,
			KeyPrefix:       d.Prefix,
			ForcePathStyle:  d.ForcePathStyle,
			LiveProbe:       d.LiveProbe,
		}
	case domain.KindSecureCopy:
		dest.Config.SecureCopy = &domain.SecureCopyConfig{
			Host:       d.Host,
			Port:       d.Port,
			Username:   d.Username,
			Password:   d.Password,
			RemotePath: d.RemotePath,
		}
	case domain.KindCloudDrive:
		dest.Config.CloudDrive = &domain.CloudDriveConfig{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RefreshToken: d.RefreshToken,
			FolderID:     d.FolderID,
			LiveProbe:    d.LiveProbe,
		}
	case domain.KindBlobStore:
		dest.Config.BlobStore = &domain.BlobStoreConfig{
			ConnectionString: d.ConnectionString,
			AccountName:      d.AccountName,
			AccountKey:       d.AccountKey,
			ServiceURL:       d.Endpoint,
			Container:        d.Container,
			BlobPrefix:       d.Prefix,
			LiveProbe:        d.LiveProbe,
		}
	}

	if err := dest.Validate(); err != nil {
		return nil, err
	}
	return dest, nil
}
