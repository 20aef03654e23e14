package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the service reads from the environment
type Config struct {
	Port        string
	Environment string

	StoreBackend string // memory, postgres or bolt
	BoltPath     string
	Database     DatabaseConfig

	Twilio TwilioConfig

	PublicBaseURL            string
	DisableWebhookValidation bool
	JWTSecret                string

	SettlementDelay      time.Duration
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	User                   string
	Password               string
	Name                   string
	Host                   string
	Port                   string
	InstanceConnectionName string // Cloud SQL socket, production only
}

// TwilioConfig holds the WhatsApp sender credentials
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // Format: "whatsapp:+14155238886"
}

// Configured reports whether all credentials needed to send are present
func (t TwilioConfig) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.WhatsAppFrom != ""
}

// LoadEnvFiles loads .env for local development. Production (Cloud Run)
// injects the environment directly.
func LoadEnvFiles() {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}
}

// Load reads the configuration from the process environment
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		Environment:  getEnv("ENVIRONMENT", "production"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "memory")),
		BoltPath:     getEnv("BOLT_PATH", "rampa.db"),
		Database: DatabaseConfig{
			User:                   getEnv("DB_USER", "postgres"),
			Password:               os.Getenv("DB_PASS"),
			Name:                   getEnv("DB_NAME", "rampa"),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnv("DB_PORT", "5432"),
			InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		},
		Twilio: TwilioConfig{
			AccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
		},
		PublicBaseURL:            strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		DisableWebhookValidation: getBool("DISABLE_WEBHOOK_VALIDATION", false),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		SettlementDelay:          getDuration("SETTLEMENT_DELAY", 15*time.Second),
		SessionTTL:               getDuration("SESSION_TTL", 30*time.Minute),
		SessionSweepInterval:     getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		WebhookRatePerSecond:     getFloat("WEBHOOK_RATE_PER_SECOND", 2),
		WebhookRateBurst:         getInt("WEBHOOK_RATE_BURST", 5),
	}
}

// IsDevelopment reports whether webhook signature checks may be skipped
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

// getDuration accepts Go durations ("15s") or a bare number of seconds
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("⚠️  Invalid %s=%q, using %v", key, v, fallback)
	return fallback
}
