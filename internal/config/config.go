package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config is the global kernel configuration, loaded once from the
// environment.
type Config struct {
	// AppDataDir is the confinement root for every plugin's filesystem
	// access, permission store, and audit log (spec.md §4.4/§6).
	AppDataDir string

	// PluginsDir holds extracted plugin installs.
	PluginsDir string

	// AutoApprove grants every permission request without prompting.
	// Production deployments must set this false (spec.md §4.2/§9).
	AutoApprove bool

	// RateLimitCapacity and RateLimitWindowSeconds are read from the
	// environment but are not passed to the kernel: the per-plugin network
	// token bucket in internal/kernel/permission uses its own fixed
	// defaults (100 tokens per 60 s).
	RateLimitCapacity      int
	RateLimitWindowSeconds int

	// HTTPBindAddr is the host API's listen address.
	HTTPBindAddr string

	// JWTSigningKey signs bearer tokens issued by the host API.
	JWTSigningKey string
}

var (
	GlobalConfig *Config
	once         sync.Once
)

// Load reads the kernel configuration from the environment, caching the
// result for the process lifetime.
func Load() *Config {
	once.Do(func() {
		GlobalConfig = &Config{
			AppDataDir:             getEnv("KERNEL_APP_DATA_DIR", "./appdata"),
			PluginsDir:             getEnv("KERNEL_PLUGINS_DIR", "./appdata/plugins"),
			AutoApprove:            getEnvBool("KERNEL_AUTO_APPROVE", false),
			RateLimitCapacity:      getEnvInt("KERNEL_RATE_LIMIT_CAPACITY", 100),
			RateLimitWindowSeconds: getEnvInt("KERNEL_RATE_LIMIT_WINDOW_SECONDS", 60),
			HTTPBindAddr:           getEnv("KERNEL_HTTP_BIND_ADDR", ":8787"),
			JWTSigningKey:          getEnv("KERNEL_JWT_SIGNING_KEY", "dev-signing-key-change-me"),
		}
	})
	return GlobalConfig
}

// AppDataPath joins a relative path onto the configured AppData root.
func AppDataPath(relPath string) string {
	if GlobalConfig == nil {
		Load()
	}
	return filepath.Join(GlobalConfig.AppDataDir, relPath)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes" || value == "on"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return defaultValue
		}
		n = n*10 + int(r-'0')
	}
	return n
}
