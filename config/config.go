package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"showdown-strategist/client"
	"showdown-strategist/session"
)

// Config is the process configuration. Values come from .env, then the
// environment, then command-line flags, later sources winning.
type Config struct {
	ServerURL     string
	LoginURL      string
	Username      string
	Password      string
	Format        string
	Mode          session.Mode
	Opponent      string
	Battles       int
	MaxConcurrent int
	// CSVPath "off" disables the CSV sink. Empty derives a per-user file.
	CSVPath      string
	SQLitePath   string
	StrategyPath string
	DataDir      string
	LogLevel     string
	LogJSON      bool
}

const csvDisabled = "off"

// Load reads configuration for the given command-line arguments (without
// the program name).
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	battles, err := envInt("SHOWDOWN_BATTLES", 10)
	if err != nil {
		return nil, err
	}
	concurrent, err := envInt("SHOWDOWN_MAX_CONCURRENT", 1)
	if err != nil {
		return nil, err
	}
	logJSON, err := envBool("LOG_JSON", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	var mode string
	flags := flag.NewFlagSet("showdown-strategist", flag.ContinueOnError)
	flags.StringVar(&cfg.ServerURL, "server", env("SHOWDOWN_SERVER_URL", client.DefaultServerURL), "showdown websocket url")
	flags.StringVar(&cfg.LoginURL, "login-url", env("SHOWDOWN_LOGIN_URL", client.DefaultLoginURL), "login action url")
	flags.StringVar(&cfg.Username, "username", env("SHOWDOWN_USERNAME", ""), "account name (random guest name when empty)")
	flags.StringVar(&cfg.Format, "format", env("SHOWDOWN_FORMAT", "gen8randombattle"), "battle format")
	flags.StringVar(&mode, "mode", env("SHOWDOWN_MODE", string(session.ModeLadder)), "ladder, challenge or accept")
	flags.StringVar(&cfg.Opponent, "opponent", env("SHOWDOWN_OPPONENT", ""), "user to challenge or accept")
	flags.IntVar(&cfg.Battles, "battles", battles, "number of battles to play")
	flags.IntVar(&cfg.MaxConcurrent, "concurrent", concurrent, "battles played at once")
	flags.StringVar(&cfg.CSVPath, "csv", env("SHOWDOWN_CSV_PATH", ""), `turn log csv path ("off" to disable)`)
	flags.StringVar(&cfg.SQLitePath, "sqlite", env("SHOWDOWN_SQLITE_PATH", ""), "turn log sqlite path")
	flags.StringVar(&cfg.StrategyPath, "strategy", env("SHOWDOWN_STRATEGY", "strategy.yaml"), "strategy yaml file")
	flags.StringVar(&cfg.DataDir, "data", env("SHOWDOWN_DATA_DIR", "data"), "directory holding pokedex.json and moves.json")
	flags.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", "info"), "log level")
	flags.BoolVar(&cfg.LogJSON, "log-json", logJSON, "log as json")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.Password = os.Getenv("SHOWDOWN_PASSWORD")

	if cfg.Mode, err = session.ParseMode(mode); err != nil {
		return nil, err
	}
	if cfg.Username == "" {
		cfg.Username = "Bot_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if cfg.CSVPath == "" {
		cfg.CSVPath = filepath.Join("battle_data", fmt.Sprintf("%s_%s.csv", cfg.Mode, cfg.Username))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Format == "":
		return errors.New("config: format is required")
	case c.Battles < 1:
		return fmt.Errorf("config: battles must be positive, got %d", c.Battles)
	case c.MaxConcurrent < 1:
		return fmt.Errorf("config: concurrent must be positive, got %d", c.MaxConcurrent)
	case c.Mode == session.ModeChallenge && c.Opponent == "":
		return errors.New("config: challenge mode needs an opponent")
	}
	return nil
}

// CSVEnabled reports whether turns should be written to CSV.
func (c *Config) CSVEnabled() bool {
	return c.CSVPath != csvDisabled
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
