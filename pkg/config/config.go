package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Token store backends.
const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
	TokenStoreMemory   = "memory"
)

type Config struct {
	Env    string
	Port   int
	AppURL string

	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	OAuth         OAuthConfig
	Provider      ProviderConfig
	Renewal       RenewalConfig
	Tokens        TokenStoreConfig
	Session       SessionConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OAuthConfig describes the identity provider used for the authorization-code and refresh flows.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	StateSecret  string
	StateTTL     time.Duration
}

// ProviderConfig describes the change-notification API and the webhook it calls back.
type ProviderConfig struct {
	BaseURL         string
	Resource        string
	ChangeType      string
	NotificationURL string
	ClientState     string
	RequestTimeout  time.Duration
}

// RenewalConfig tunes the background renewal engine.
type RenewalConfig struct {
	Enabled       bool
	Interval      time.Duration
	Lookahead     time.Duration
	LeaseDuration time.Duration
	Concurrency   int
}

// TokenStoreConfig selects where per-user OAuth tokens live.
type TokenStoreConfig struct {
	Backend       string
	EncryptionKey string
	RefreshBuffer time.Duration
	RedisTTL      time.Duration
}

// SessionConfig governs the signed session token handed out after login.
type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
	Issuer     string
}

// NotificationConfig sizes the asynchronous webhook notification workers.
type NotificationConfig struct {
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.AppURL = strings.TrimRight(v.GetString("APP_URL"), "/")
	if cfg.AppURL == "" {
		cfg.AppURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	redirectURL := v.GetString("OAUTH_REDIRECT_URL")
	if redirectURL == "" {
		redirectURL = cfg.AppURL + "/auth/callback"
	}
	cfg.OAuth = OAuthConfig{
		ClientID:     v.GetString("OAUTH_CLIENT_ID"),
		ClientSecret: v.GetString("OAUTH_CLIENT_SECRET"),
		AuthURL:      v.GetString("OAUTH_AUTH_URL"),
		TokenURL:     v.GetString("OAUTH_TOKEN_URL"),
		RedirectURL:  redirectURL,
		Scopes:       splitScopes(v.GetString("OAUTH_SCOPES")),
		StateSecret:  v.GetString("OAUTH_STATE_SECRET"),
		StateTTL:     parseDuration(v.GetString("OAUTH_STATE_TTL"), 10*time.Minute),
	}

	notificationURL := v.GetString("WEBHOOK_URL")
	if notificationURL == "" {
		notificationURL = cfg.AppURL + "/webhook"
	}
	cfg.Provider = ProviderConfig{
		BaseURL:         strings.TrimRight(v.GetString("GRAPH_BASE_URL"), "/"),
		Resource:        v.GetString("GRAPH_RESOURCE"),
		ChangeType:      v.GetString("GRAPH_CHANGE_TYPE"),
		NotificationURL: notificationURL,
		ClientState:     v.GetString("WEBHOOK_SECRET"),
		RequestTimeout:  parseDuration(v.GetString("GRAPH_REQUEST_TIMEOUT"), 15*time.Second),
	}

	cfg.Renewal = RenewalConfig{
		Enabled:       v.GetBool("RENEWAL_ENABLED"),
		Interval:      parseDuration(v.GetString("RENEWAL_INTERVAL"), time.Hour),
		Lookahead:     parseDuration(v.GetString("RENEWAL_LOOKAHEAD"), 24*time.Hour),
		LeaseDuration: parseDuration(v.GetString("RENEWAL_LEASE"), 70*time.Hour),
		Concurrency:   v.GetInt("RENEWAL_CONCURRENCY"),
	}

	cfg.Tokens = TokenStoreConfig{
		Backend:       strings.ToLower(v.GetString("TOKEN_STORE")),
		EncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
		RefreshBuffer: parseDuration(v.GetString("TOKEN_REFRESH_BUFFER"), 5*time.Minute),
		RedisTTL:      parseDuration(v.GetString("TOKEN_REDIS_TTL"), 90*24*time.Hour),
	}

	cfg.Session = SessionConfig{
		Secret:     v.GetString("SESSION_SECRET"),
		TTL:        parseDuration(v.GetString("SESSION_TTL"), 24*time.Hour),
		CookieName: v.GetString("SESSION_COOKIE_NAME"),
		Issuer:     v.GetString("SESSION_ISSUER"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field invariants that viper defaults cannot express.
func (c *Config) Validate() error {
	r := c.Renewal
	if r.Interval <= 0 || r.Lookahead <= 0 || r.LeaseDuration <= 0 {
		return errors.New("renewal interval, lookahead and lease must be positive")
	}
	if r.Interval >= r.Lookahead {
		return fmt.Errorf("RENEWAL_INTERVAL (%s) must be shorter than RENEWAL_LOOKAHEAD (%s)", r.Interval, r.Lookahead)
	}
	if r.Lookahead >= r.LeaseDuration {
		return fmt.Errorf("RENEWAL_LOOKAHEAD (%s) must be shorter than RENEWAL_LEASE (%s)", r.Lookahead, r.LeaseDuration)
	}

	switch c.Tokens.Backend {
	case TokenStorePostgres, TokenStoreRedis, TokenStoreMemory:
	default:
		return fmt.Errorf("unsupported TOKEN_STORE %q", c.Tokens.Backend)
	}

	if c.Env == EnvProduction {
		missing := make([]string, 0)
		if c.OAuth.ClientID == "" {
			missing = append(missing, "OAUTH_CLIENT_ID")
		}
		if c.OAuth.ClientSecret == "" {
			missing = append(missing, "OAUTH_CLIENT_SECRET")
		}
		if c.Provider.ClientState == "" {
			missing = append(missing, "WEBHOOK_SECRET")
		}
		if c.Session.Secret == "" || c.Session.Secret == devSessionSecret {
			missing = append(missing, "SESSION_SECRET")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required production settings: %s", strings.Join(missing, ", "))
		}
	}

	return nil
}

const devSessionSecret = "dev_session_secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3000)
	v.SetDefault("APP_URL", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "webhook_user")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "webhook_renewal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OAUTH_AUTH_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/authorize")
	v.SetDefault("OAUTH_TOKEN_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/token")
	v.SetDefault("OAUTH_SCOPES", "https://graph.microsoft.com/Mail.ReadWrite offline_access")
	v.SetDefault("OAUTH_STATE_SECRET", "dev_state_secret")
	v.SetDefault("OAUTH_STATE_TTL", "10m")

	v.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("GRAPH_RESOURCE", "/me/messages")
	v.SetDefault("GRAPH_CHANGE_TYPE", "created")
	v.SetDefault("GRAPH_REQUEST_TIMEOUT", "15s")

	v.SetDefault("RENEWAL_ENABLED", true)
	v.SetDefault("RENEWAL_INTERVAL", "1h")
	v.SetDefault("RENEWAL_LOOKAHEAD", "24h")
	v.SetDefault("RENEWAL_LEASE", "70h")
	v.SetDefault("RENEWAL_CONCURRENCY", 4)

	v.SetDefault("TOKEN_STORE", TokenStorePostgres)
	v.SetDefault("TOKEN_ENCRYPTION_KEY", "")
	v.SetDefault("TOKEN_REFRESH_BUFFER", "5m")
	v.SetDefault("TOKEN_REDIS_TTL", "2160h")

	v.SetDefault("SESSION_SECRET", devSessionSecret)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_COOKIE_NAME", "renewal_session")
	v.SetDefault("SESSION_ISSUER", "mail-webhook-renewal")

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER", 256)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// splitScopes accepts either space or comma separated scope lists.
func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
