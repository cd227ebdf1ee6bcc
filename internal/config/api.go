package config

import "time"

// APIConfig holds runtime configuration for the accounts API.
type APIConfig struct {
	Environment   string
	Addr          string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MailProvider string
	MailFrom     string
	MailFromName string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	BrevoAPIKey  string

	AdminEmail    string
	AdminFullName string
	AdminPassword string

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:   GetString("APP_ENV", "development"),
		Addr:          GetString("API_ADDR", ":8000"),
		LogLevel:      GetString("LOG_LEVEL", "info"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://prolearn:prolearn@db:5432/prolearn?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),

		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,

		MailProvider: GetString("MAIL_PROVIDER", "log"),
		MailFrom:     GetString("MAIL_FROM", "noreply@prolearn.com"),
		MailFromName: GetString("MAIL_FROM_NAME", "ProLearn"),
		SMTPHost:     GetString("SMTP_HOST", "localhost"),
		SMTPPort:     GetInt("SMTP_PORT", 587),
		SMTPUsername: GetString("SMTP_USERNAME", ""),
		SMTPPassword: GetString("SMTP_PASSWORD", ""),
		BrevoAPIKey:  GetString("BREVO_API_KEY", ""),

		AdminEmail:    GetString("ADMIN_EMAIL", ""),
		AdminFullName: GetString("ADMIN_FULL_NAME", "Platform Admin"),
		AdminPassword: GetString("ADMIN_PASSWORD", ""),

		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
