package config

import "os"

// Config holds the environment-driven settings for the dashboard
type Config struct {
	Port           string
	Env            string
	PlatformAPIURL string
	RedisURL       string
}

// Load reads configuration from the environment. Callers load .env first
// (godotenv in main).
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PlatformAPIURL: getEnv("PLATFORM_API_URL", "http://localhost:9000"),
		RedisURL:       os.Getenv("REDIS_URL"),
	}
}

// Production reports whether we run with production settings (secure
// cookies, production logging)
func (c *Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
