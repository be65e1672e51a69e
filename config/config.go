package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every process setting read from the environment.
type Config struct {
	Port               string
	MongoURI           string
	MongoDatabase      string
	RedisAddress       string
	RedisPassword      string
	DataDir            string
	SubmitRateLimit    int
	RateLimitPrefix    string
	RemoteTimeout      time.Duration
	ListenPollInterval time.Duration
	CORSOrigins        []string
	LogLevel           string
	LogFormat          string
}

// LoadDotEnv reads .env into the environment if the file exists. It reports
// whether a file was loaded.
func LoadDotEnv(paths ...string) bool {
	return godotenv.Load(paths...) == nil
}

// Load reads the configuration from the environment. Values that fail to
// parse fall back to their defaults.
func Load() Config {
	return Config{
		Port:               envString("PORT", "8080"),
		MongoURI:           os.Getenv("MONGODB_URI"),
		MongoDatabase:      envString("MONGODB_DATABASE", "civicanchor"),
		RedisAddress:       os.Getenv("REDIS_ADDRESS"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		DataDir:            envString("DATA_DIR", "./data"),
		SubmitRateLimit:    envInt("SUBMIT_RATE_LIMIT", 50),
		RateLimitPrefix:    envString("REDIS_RATE_LIMIT_PREFIX", "anchor_submit"),
		RemoteTimeout:      envDuration("REMOTE_TIMEOUT", 10*time.Second),
		ListenPollInterval: envDuration("LISTEN_POLL_INTERVAL", 15*time.Second),
		CORSOrigins:        envList("CORS_ORIGINS", []string{"*"}),
		LogLevel:           envString("LOG_LEVEL", "info"),
		LogFormat:          envString("LOG_FORMAT", "text"),
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
