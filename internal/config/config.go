// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "QUIZBOARD"

// Inbound frame limits. The default fits a full 10x10 quiz with long clue text.
const (
	DefaultReadLimit int64 = 1 << 20
	MinReadLimit     int64 = 32 << 10
)

// Config holds every runtime setting of the server.
type Config struct {
	Bind           string
	Port           int
	PublicURL      string
	AllowedOrigins []string

	RoomTTL       time.Duration
	SweepInterval time.Duration
	MaxRooms      int

	SendBuffer   int
	ReadLimit    int64
	WriteTimeout time.Duration
	PingInterval time.Duration

	CredentialTTL time.Duration

	RedisAddr    string
	RedisDB      int
	JournalQueue string

	LogLevel string
	LogJSON  bool
}

// RegisterFlags declares every setting on fs with its default.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOARD_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: QUIZBOARD_PORT)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "externally reachable base URL used in invite QR codes (env: QUIZBOARD_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "origin patterns accepted on the websocket (env: QUIZBOARD_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.RoomTTL, "room-ttl", 6*time.Hour, "idle time before a room is removed (env: QUIZBOARD_ROOM_TTL)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", time.Minute, "how often idle rooms are swept (env: QUIZBOARD_SWEEP_INTERVAL)")
	fs.IntVar(&cfg.MaxRooms, "max-rooms", 0, "maximum number of live rooms, 0 for no limit (env: QUIZBOARD_MAX_ROOMS)")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", 16, "outbound messages buffered per connection (env: QUIZBOARD_SEND_BUFFER)")
	fs.Int64Var(&cfg.ReadLimit, "read-limit", DefaultReadLimit, "largest inbound websocket frame in bytes (env: QUIZBOARD_READ_LIMIT)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", 5*time.Second, "timeout for a single websocket write (env: QUIZBOARD_WRITE_TIMEOUT)")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", 30*time.Second, "interval between keepalive pings (env: QUIZBOARD_PING_INTERVAL)")
	fs.DurationVar(&cfg.CredentialTTL, "credential-ttl", 0, "lifetime of host credentials, 0 for no expiry (env: QUIZBOARD_CREDENTIAL_TTL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the action journal, empty to disable (env: QUIZBOARD_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: QUIZBOARD_REDIS_DB)")
	fs.StringVar(&cfg.JournalQueue, "journal-queue", "quizboard_actions", "redis list receiving journaled actions (env: QUIZBOARD_JOURNAL_QUEUE)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error (env: QUIZBOARD_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "emit logs as JSON (env: QUIZBOARD_LOG_JSON)")
}

// ApplyEnv fills every flag not set on the command line from QUIZBOARD_* variables.
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.RoomTTL <= 0 {
		return fmt.Errorf("room-ttl must be positive: %s", c.RoomTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive: %s", c.SweepInterval)
	}
	if c.MaxRooms < 0 {
		return fmt.Errorf("max-rooms must not be negative: %d", c.MaxRooms)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("send-buffer must be at least 1: %d", c.SendBuffer)
	}
	if c.ReadLimit < MinReadLimit {
		return fmt.Errorf("read-limit must be at least %d bytes: %d", MinReadLimit, c.ReadLimit)
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return errors.New("write-timeout and ping-interval must be positive")
	}
	if c.CredentialTTL < 0 {
		return fmt.Errorf("credential-ttl must not be negative: %s", c.CredentialTTL)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis-db must not be negative: %d", c.RedisDB)
	}
	if c.RedisAddr != "" && strings.TrimSpace(c.JournalQueue) == "" {
		return errors.New("journal-queue is required when redis-addr is set")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// NewLogger builds the process logger from the log settings.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
