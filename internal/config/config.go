// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. The types reflect how the values are used in the
// application: strings for identifiers and secrets, ints for durations and
// attempt budgets.
type Config struct {
	Env            string // application environment (e.g. "dev", "production")
	Port           string // HTTP port to listen on
	ClientURL      string // origin of the web client, used for cookies
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	DBMaxOpen      int    // connection pool upper bound
	DBMaxIdle      int    // idle connections kept around
	DBConnLifeMin  int    // connection max lifetime in minutes
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing
	OTPRequestSec  int    // minimum seconds between OTP requests per phone
	OTPMaxAttempts int    // invalid OTP attempts before lockout
	OTPLockMin     int    // lockout duration in minutes
	DeletionDays   int    // grace period before a scheduled account deletion fires
	DisableCache   bool   // response caching kill switch
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message. Tunables with safe defaults
// fall back instead of failing.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		ClientURL:      getenv("CLIENT_URL", "http://localhost:3000"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBMaxOpen:      intenv("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdle:      intenv("DB_MAX_IDLE_CONNS", 25),
		DBConnLifeMin:  intenv("DB_CONN_MAX_LIFETIME_MIN", 30),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   intenv("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: intenv("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     intenv("BCRYPT_COST", 10),
		OTPRequestSec:  intenv("OTP_REQUEST_INTERVAL_SEC", 60),
		OTPMaxAttempts: intenv("OTP_MAX_ATTEMPTS", 5),
		OTPLockMin:     intenv("OTP_LOCK_MIN", 15),
		DeletionDays:   intenv("ACCOUNT_DELETION_DAYS", 7),
		DisableCache:   getenv("DISABLE_CACHE", "false") == "true",
	}
}

// IsProduction reports whether the app runs with production cookie settings
// (Secure cookies, SameSite=None).
func (c Config) IsProduction() bool { return c.Env == "production" || c.Env == "prod" }

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intenv reads an integer variable, falling back to def when unset or
// malformed.
func intenv(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("invalid int for %s: %q, using default %d", key, s, def)
		return def
	}
	return n
}
