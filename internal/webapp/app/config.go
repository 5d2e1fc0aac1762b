package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Authority          string        // Required: OpenID provider authority, discovery is read from <authority>/.well-known/openid-configuration
	ClientID           string        // Required: client id registered with the provider
	ClientSecret       string        // Optional: client secret (WEBAPP_CLIENT_SECRET or WEBAPP_CLIENT_SECRET_FILE)
	RedirectURL        string        // Required: absolute URL of POST /signin-oidc
	PostLogoutRedirect string        // Optional: where the provider returns the browser after sign out
	APIRoot            string        // Required: base URL of the remote API
	APIScopes          []string      // Optional: scopes requested for the remote API (space separated)
	PrivilegeTTL       time.Duration // Optional: privilege record lifetime, 0 keeps it for the session (default: 15m)

	DatabaseFile   string        // Optional: path to SQLite database file (default: ./webapp.db)
	SecretFile     string        // Optional: path to the cookie and credential encryption secret
	Secret         string        // Optional: the secret itself, used when SecretFile is empty
	RedisURL       string        // Optional: shared session store, in-memory when empty
	SessionTTL     time.Duration // Optional: sliding session lifetime (default: 8h)
	CookieSecure   bool          // Optional: mark cookies Secure (default: true)
	JWKSRefresh    time.Duration // Optional: ID token key refresh interval (default: 1h)
	TracingEnabled bool          // Optional: record spans for outbound API calls (default: true)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 15m)
}

func LoadConfig() Config {
	return Config{
		Authority:          strings.TrimSuffix(os.Getenv("WEBAPP_AUTHORITY"), "/"),
		ClientID:           os.Getenv("WEBAPP_CLIENT_ID"),
		ClientSecret:       getEnvOrFile("WEBAPP_CLIENT_SECRET"),
		RedirectURL:        os.Getenv("WEBAPP_REDIRECT_URL"),
		PostLogoutRedirect: os.Getenv("WEBAPP_POST_LOGOUT_REDIRECT_URL"),
		APIRoot:            os.Getenv("WEBAPP_API_ROOT"),
		APIScopes:          strings.Fields(os.Getenv("WEBAPP_API_SCOPES")),
		PrivilegeTTL:       getEnvDurationOrDefault("WEBAPP_PRIVILEGE_TTL", 15*time.Minute),

		DatabaseFile:   getEnvOrDefault("WEBAPP_DATABASE_FILE", "webapp.db"),
		SecretFile:     os.Getenv("WEBAPP_SECRET_FILE"),
		Secret:         os.Getenv("WEBAPP_SECRET"),
		RedisURL:       getEnvOrFile("WEBAPP_REDIS_URL"),
		SessionTTL:     getEnvDurationOrDefault("WEBAPP_SESSION_TTL", 8*time.Hour),
		CookieSecure:   getEnvBoolOrDefault("WEBAPP_COOKIE_SECURE", true),
		JWKSRefresh:    getEnvDurationOrDefault("WEBAPP_JWKS_REFRESH", time.Hour),
		TracingEnabled: getEnvBoolOrDefault("WEBAPP_TRACING", true),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
	}
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"WEBAPP_AUTHORITY":    c.Authority,
		"WEBAPP_REDIRECT_URL": c.RedirectURL,
		"WEBAPP_API_ROOT":     c.APIRoot,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if u, err := url.Parse(v); err != nil || !u.IsAbs() {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", name))
		}
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("WEBAPP_CLIENT_ID is required"))
	}
	if c.PrivilegeTTL < 0 {
		errs = append(errs, errors.New("WEBAPP_PRIVILEGE_TTL must not be negative"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrFile reads key, falling back to the contents of the file named by
// key_FILE for values mounted as secrets.
func getEnvOrFile(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
