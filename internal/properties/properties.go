package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTokenURL    = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
	defaultBaseURL     = "https://sh.dataspace.copernicus.eu"
	defaultWorkers     = 4
	defaultRetryDelay  = 5 * time.Second
	defaultAPIAddr     = ":8080"
	defaultCache       = "file"
	defaultLogLevel    = "info"
	defaultMaxAttempts = 1
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// DataPath joins elem under <ROOT_PATH>/data.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{RootPath(), "data"}, elem...)...)
}

type Color struct {
	R, G, B uint8
}

// ColorMap holds the land-cover palette used when rendering class maps.
var ColorMap = map[string]Color{
	"water":             {30, 100, 200},
	"dense vegetation":  {20, 120, 40},
	"sparse vegetation": {150, 200, 90},
	"bare":              {190, 160, 110},
	"forest loss":       {220, 30, 30},
	"unknown":           {255, 0, 0},
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

// Config is the resolved runtime configuration.
type Config struct {
	RootPath      string
	ClientIDs     []string
	ClientSecrets []string
	TokenURL      string
	BaseURL       string
	MaxAttempts   int
	RetryDelay    time.Duration
	Workers       int
	CacheBackend  string
	StoreDSN      string
	APIAddr       string
	LogLevel      string
}

// LoadEnv loads the first .env file found among paths. Missing files are not an error.
func LoadEnv(paths ...string) string {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		RootPath:     RootPath(),
		TokenURL:     envOr("COPERNICUS_TOKEN_URL", defaultTokenURL),
		BaseURL:      strings.TrimSuffix(envOr("COPERNICUS_BASE_URL", defaultBaseURL), "/"),
		MaxAttempts:  defaultMaxAttempts,
		RetryDelay:   defaultRetryDelay,
		Workers:      defaultWorkers,
		CacheBackend: strings.ToLower(envOr("CACHE_BACKEND", defaultCache)),
		StoreDSN:     strings.TrimSpace(os.Getenv("STORE_DSN")),
		APIAddr:      envOr("API_ADDR", defaultAPIAddr),
		LogLevel:     envOr("LOG_LEVEL", defaultLogLevel),
	}

	cfg.ClientIDs = splitList(os.Getenv("COPERNICUS_CLIENT_ID"))
	cfg.ClientSecrets = splitList(os.Getenv("COPERNICUS_CLIENT_SECRET"))
	if len(cfg.ClientIDs) != len(cfg.ClientSecrets) {
		return cfg, fmt.Errorf("mismatched number of client IDs (%d) and secrets (%d)", len(cfg.ClientIDs), len(cfg.ClientSecrets))
	}

	var err error
	if cfg.MaxAttempts, err = envInt("SENTINEL_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = envInt("FETCH_WORKERS", cfg.Workers); err != nil {
		return cfg, err
	}
	if v := strings.TrimSpace(os.Getenv("SENTINEL_RETRY_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SENTINEL_RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = d
	}

	switch cfg.CacheBackend {
	case "file", "badger", "none":
	default:
		return cfg, fmt.Errorf("invalid CACHE_BACKEND %q: expected file, badger or none", cfg.CacheBackend)
	}

	return cfg, nil
}

// HasCredentials reports whether at least one client id/secret pair is configured.
func (c Config) HasCredentials() bool {
	return len(c.ClientIDs) > 0 && len(c.ClientSecrets) > 0
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback, fmt.Errorf("invalid %s: %q is not a positive integer", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
