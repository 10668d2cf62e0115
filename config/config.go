package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port             string        // Service port
	LoginLabel       string        // Leftmost label of the login domain
	DomainSuffix     string        // Shared domain suffix (e.g. lvh.me)
	FrontendPort     string        // Port the browser-facing frontends run on
	HandoffTokenTTL  time.Duration // Lifetime of a single-use handoff token
	IdleTimeout      time.Duration // Tenant session idle timeout
	SessionMaxAge    time.Duration // Absolute session lifetime in the store
	CookieMaxAge     time.Duration // Session cookie Max-Age
	ProbeInterval    time.Duration // Client liveness probe interval
	ClientIdleLimit  time.Duration // Client-side idle detector threshold
	APITokenSecret   string        // Secret for signing backend API tokens
	APITokenIssuer   string        // JWT issuer claim
	APITokenAudience string        // JWT audience claim
	APITokenTTL      time.Duration // JWT token TTL
	DemoUsers        []DemoUser    // Seed accounts for the user directory
}

// DemoUser is one seeded directory account.
type DemoUser struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Tenants  []string `json:"tenants"`
}

// defaultDemoUsers matches the accounts the demo frontends sign in with.
var defaultDemoUsers = []DemoUser{
	{ID: "user-1", Email: "alice@example.com", Name: "Alice", Password: "password123", Tenants: []string{"acme", "globex"}},
	{ID: "user-2", Email: "bob@example.com", Name: "Bob", Password: "password123", Tenants: []string{"acme"}},
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Port:             getEnv("PORT", "8080"),
		LoginLabel:       getEnv("LOGIN_DOMAIN_LABEL", "login"),
		DomainSuffix:     getEnv("DOMAIN_SUFFIX", "lvh.me"),
		FrontendPort:     getEnv("FRONTEND_PORT", "5173"),
		HandoffTokenTTL:  90 * time.Second,
		IdleTimeout:      20 * time.Minute,
		SessionMaxAge:    24 * time.Hour,
		CookieMaxAge:     24 * time.Hour,
		ProbeInterval:    5 * time.Minute,
		ClientIdleLimit:  2 * time.Minute,
		APITokenSecret:   getEnv("API_TOKEN_SECRET", "dev-only-secret"),
		APITokenIssuer:   getEnv("API_TOKEN_ISSUER", "tenant-gate"),
		APITokenAudience: getEnv("API_TOKEN_AUDIENCE", "tenant-api"),
		APITokenTTL:      5 * time.Minute,
		DemoUsers:        defaultDemoUsers,
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"HANDOFF_TOKEN_TTL", &config.HandoffTokenTTL},
		{"SESSION_IDLE_TIMEOUT", &config.IdleTimeout},
		{"SESSION_MAX_AGE", &config.SessionMaxAge},
		{"COOKIE_MAX_AGE", &config.CookieMaxAge},
		{"PROBE_INTERVAL", &config.ProbeInterval},
		{"CLIENT_IDLE_LIMIT", &config.ClientIdleLimit},
		{"API_TOKEN_TTL", &config.APITokenTTL},
	}
	for _, d := range durations {
		value := os.Getenv(d.key)
		if value == "" {
			continue
		}
		duration, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format: %w", d.key, err)
		}
		*d.target = duration
	}

	// Parse DEMO_USERS if provided
	if usersJSON := getEnv("DEMO_USERS", ""); usersJSON != "" {
		var users []DemoUser
		if err := json.Unmarshal([]byte(usersJSON), &users); err != nil {
			return nil, fmt.Errorf("invalid DEMO_USERS format: %w", err)
		}
		config.DemoUsers = users
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	if c.LoginLabel == "" {
		return fmt.Errorf("LOGIN_DOMAIN_LABEL cannot be empty")
	}

	if c.DomainSuffix == "" {
		return fmt.Errorf("DOMAIN_SUFFIX cannot be empty")
	}

	if strings.Contains(c.LoginLabel, ".") {
		return fmt.Errorf("LOGIN_DOMAIN_LABEL must be a single label")
	}

	if c.HandoffTokenTTL <= 0 {
		return fmt.Errorf("HANDOFF_TOKEN_TTL must be positive")
	}

	if c.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}

	if c.APITokenSecret == "" {
		return fmt.Errorf("API_TOKEN_SECRET cannot be empty")
	}

	return nil
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	// Check for _FILE suffix
	if fileValue := os.Getenv(key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
