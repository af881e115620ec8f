package commands

import (
	"os"
	"strconv"

	"cribsync/lib/configutil"
)

type BrightwheelConfig struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	SessionCookie string `json:"session_cookie"`
	BaseUrl       string `json:"base_url"`
}

type NaraConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	BaseUrl  string `json:"base_url"`
}

type SyncConfig struct {
	DaysBack          int     `json:"days_back"`
	BatchSize         int     `json:"batch_size"`
	Workers           int     `json:"workers"`
	RetryMaxAttempts  int     `json:"retry_max_attempts"`
	RetryDelaySeconds float64 `json:"retry_delay_seconds"`
	DryRun            bool    `json:"dry_run"`
}

type Config struct {
	Brightwheel BrightwheelConfig `json:"brightwheel"`
	Nara        NaraConfig        `json:"nara"`
	Sync        SyncConfig        `json:"sync"`
}

// LoadConfig layers defaults, config.json5 (+ .local override) and
// environment variables, in increasing priority. A missing config file
// is fine; everything can come from the environment.
func LoadConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	applyEnv(&cfg)

	if cfg.Brightwheel.BaseUrl == "" {
		cfg.Brightwheel.BaseUrl = "https://schools.mybrightwheel.com"
	}
	if cfg.Nara.BaseUrl == "" {
		cfg.Nara.BaseUrl = "https://api.nara.com"
	}
	if cfg.Sync.DaysBack <= 0 {
		cfg.Sync.DaysBack = 7
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.RetryMaxAttempts <= 0 {
		cfg.Sync.RetryMaxAttempts = 3
	}
	if cfg.Sync.RetryDelaySeconds <= 0 {
		cfg.Sync.RetryDelaySeconds = 1
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Brightwheel.Username, "BRIGHTWHEEL_USERNAME")
	setString(&cfg.Brightwheel.Password, "BRIGHTWHEEL_PASSWORD")
	setString(&cfg.Brightwheel.SessionCookie, "BRIGHTWHEEL_SESSION_COOKIE")
	setString(&cfg.Brightwheel.BaseUrl, "BRIGHTWHEEL_BASE_URL")
	setString(&cfg.Nara.Email, "NARA_EMAIL")
	setString(&cfg.Nara.Password, "NARA_PASSWORD")
	setString(&cfg.Nara.BaseUrl, "NARA_BASE_URL")
	setInt(&cfg.Sync.DaysBack, "SYNC_DAYS_BACK")
	setInt(&cfg.Sync.BatchSize, "BATCH_SIZE")
	setInt(&cfg.Sync.Workers, "SYNC_WORKERS")
	setInt(&cfg.Sync.RetryMaxAttempts, "RETRY_MAX_ATTEMPTS")
	setFloat(&cfg.Sync.RetryDelaySeconds, "RETRY_DELAY_SECONDS")
	setBool(&cfg.Sync.DryRun, "DRY_RUN")
}

func setString(out *string, key string) {
	if v := os.Getenv(key); v != "" {
		*out = v
	}
}

func setInt(out *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*out = n
		}
	}
}

func setFloat(out *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*out = f
		}
	}
}

func setBool(out *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*out = b
		}
	}
}
