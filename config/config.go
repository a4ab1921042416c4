package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Asaas             AsaasConfig
	EvoPay            EvoPayConfig
	PixUp             PixUpConfig
	Alerts            AlertConfig
	Checkout          CheckoutConfig
	Jobs              JobsConfig
	Telemetry         TelemetryConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type AsaasConfig struct {
	APIKey       string
	BaseURL      string
	WebhookToken string
	Weight       int
	HTTPTimeout  time.Duration
}

type EvoPayConfig struct {
	APIKey      string
	BaseURL     string
	CallbackURL string
	Enabled     bool
	Weight      int
	HTTPTimeout time.Duration
}

type PixUpConfig struct {
	ProxyURL     string
	ProxySecret  string
	ClientID     string
	ClientSecret string
	WebhookToken string
	Enabled      bool
	Weight       int
	HTTPTimeout  time.Duration
}

// AlertConfig configures the admin email sent when every gateway fails.
type AlertConfig struct {
	Enabled      bool
	ResendAPIKey string
	BaseURL      string
	FromEmail    string
	FromName     string
	AdminEmails  []string
	HTTPTimeout  time.Duration
}

// CheckoutConfig holds the state machine timings and limits.
type CheckoutConfig struct {
	PendingWindow           time.Duration
	MaxPendingOrders        int
	PixLifetime             time.Duration
	PollInterval            time.Duration
	PriceToleranceCents     int64
	BoletoDueDays           int
	SettingsRefreshInterval time.Duration
	ReconcileStaleAfter     time.Duration
	JobBatchSize            int32
}

type JobsConfig struct {
	ReconcileInterval           time.Duration
	ExpirePendingInterval       time.Duration
	ReleaseReservationsInterval time.Duration
	SyncInventoryInterval       time.Duration
	ExpireSubscriptionsInterval time.Duration
}

type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "checkout-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
			MigrateOnStart:  getBoolEnv("MYSQL_MIGRATE_ON_START", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Asaas: AsaasConfig{
			APIKey:       getEnv("ASAAS_API_KEY", ""),
			BaseURL:      getEnv("ASAAS_BASE_URL", "https://api.asaas.com/v3"),
			WebhookToken: getEnv("ASAAS_WEBHOOK_TOKEN", ""),
			Weight:       getIntEnv("ASAAS_WEIGHT", 50),
			HTTPTimeout:  getSecondsEnv("ASAAS_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		EvoPay: EvoPayConfig{
			APIKey:      getEnv("EVOPAY_API_KEY", ""),
			BaseURL:     getEnv("EVOPAY_BASE_URL", "https://pix.evopay.cash/v1"),
			CallbackURL: getEnv("EVOPAY_CALLBACK_URL", ""),
			Enabled:     getBoolEnv("EVOPAY_ENABLED", false),
			Weight:      getIntEnv("EVOPAY_WEIGHT", 50),
			HTTPTimeout: getSecondsEnv("EVOPAY_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		PixUp: PixUpConfig{
			ProxyURL:     getEnv("PIXUP_PROXY_URL", ""),
			ProxySecret:  getEnv("PIXUP_PROXY_SECRET", ""),
			ClientID:     getEnv("PIXUP_CLIENT_ID", ""),
			ClientSecret: getEnv("PIXUP_CLIENT_SECRET", ""),
			WebhookToken: getEnv("PIXUP_WEBHOOK_TOKEN", ""),
			Enabled:      getBoolEnv("PIXUP_ENABLED", false),
			Weight:       getIntEnv("PIXUP_WEIGHT", 50),
			HTTPTimeout:  getSecondsEnv("PIXUP_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Alerts: AlertConfig{
			Enabled:      getBoolEnv("ALERTS_ENABLED", false),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			BaseURL:      getEnv("RESEND_BASE_URL", "https://api.resend.com"),
			FromEmail:    getEnv("ALERTS_FROM_EMAIL", ""),
			FromName:     getEnv("ALERTS_FROM_NAME", "Checkout"),
			AdminEmails:  getListEnv("ALERTS_ADMIN_EMAILS"),
			HTTPTimeout:  getSecondsEnv("RESEND_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Checkout: CheckoutConfig{
			PendingWindow:           getMinutesEnv("CHECKOUT_PENDING_WINDOW_MINUTES", 30*time.Minute),
			MaxPendingOrders:        getIntEnv("CHECKOUT_MAX_PENDING_ORDERS", 3),
			PixLifetime:             getMinutesEnv("CHECKOUT_PIX_LIFETIME_MINUTES", 15*time.Minute),
			PollInterval:            getSecondsEnv("CHECKOUT_POLL_INTERVAL_SECONDS", 5*time.Second),
			PriceToleranceCents:     int64(getIntEnv("CHECKOUT_PRICE_TOLERANCE_CENTS", 1)),
			BoletoDueDays:           getIntEnv("CHECKOUT_BOLETO_DUE_DAYS", 3),
			SettingsRefreshInterval: getSecondsEnv("CHECKOUT_SETTINGS_REFRESH_SECONDS", 60*time.Second),
			ReconcileStaleAfter:     getMinutesEnv("CHECKOUT_RECONCILE_STALE_AFTER_MINUTES", 2*time.Minute),
			JobBatchSize:            int32(getIntEnv("CHECKOUT_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:           getMinutesEnv("CHECKOUT_RECONCILE_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:       getMinutesEnv("CHECKOUT_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
			ReleaseReservationsInterval: getMinutesEnv("CHECKOUT_RELEASE_RESERVATIONS_INTERVAL_MINUTES", 10*time.Minute),
			SyncInventoryInterval:       getMinutesEnv("CHECKOUT_SYNC_INVENTORY_INTERVAL_MINUTES", time.Hour),
			ExpireSubscriptionsInterval: getMinutesEnv("CHECKOUT_EXPIRE_SUBSCRIPTIONS_INTERVAL_MINUTES", time.Hour),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty entries.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
