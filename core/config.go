package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Address            string
		DebugHost          string
		Host               string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableReqLogs     bool
	}

	databaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Address  string
		Password string
		DB       int
		LockTTL  time.Duration
		LockWait time.Duration
	}

	feesConfig struct {
		DefaultTuition   decimal.Decimal
		DefaultOtherFees decimal.Decimal
		TuitionType      string
		OtherFeesType    string
		YearStartMonth   time.Month
		ReminderInterval time.Duration
	}

	webhookConfig struct {
		InboundSecret   string
		SignatureHeader string
		Timeout         time.Duration
		MaxRetries      int
		BaseDelay       time.Duration
	}

	schedulerConfig struct {
		OutboxSpec   string
		ReminderSpec string
		OutboxBatch  int
	}

	Config struct {
		viper *viper.Viper

		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server    serverConfig
		Database  databaseConfig
		Redis     redisConfig
		Fees      feesConfig
		Webhook   webhookConfig
		Scheduler schedulerConfig
	}
)

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	workDir := Getwd()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Frais Scolaires")
	v.SetDefault("secretKey", "k3v!8w1p_7xq#r2z-frais$scolaires*m0n@9d")
	v.SetDefault("defaultFromEmail", "Frais Scolaires <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debugHost", ":4000")
	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_shutdownTimeout", 10*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server_disableReqLogs", false)

	v.SetDefault("database_engine", "postgres")
	v.SetDefault("database_host", "")
	v.SetDefault("database_port", "5432")
	v.SetDefault("database_name", "frais_scolaires")
	v.SetDefault("database_user", "")
	v.SetDefault("database_password", "")
	v.SetDefault("database_adminUser", "")
	v.SetDefault("database_adminPassword", "")
	v.SetDefault("database_disableTLS", true)

	v.SetDefault("redis_address", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_lockTTL", 15*time.Second)
	v.SetDefault("redis_lockWait", 10*time.Second)

	v.SetDefault("fees_defaultTuition", "56000")
	v.SetDefault("fees_defaultOtherFees", "800")
	v.SetDefault("fees_tuitionType", "Scolarité")
	v.SetDefault("fees_otherFeesType", "Autres frais")
	v.SetDefault("fees_yearStartMonth", 9)
	v.SetDefault("fees_reminderInterval", 7*24*time.Hour)

	v.SetDefault("webhook_inboundSecret", "")
	v.SetDefault("webhook_signatureHeader", "X-Webhook-Signature")
	v.SetDefault("webhook_timeout", 5*time.Second)
	v.SetDefault("webhook_maxRetries", 3)
	v.SetDefault("webhook_baseDelay", 500*time.Millisecond)

	v.SetDefault("scheduler_outboxSpec", "@every 5s")
	v.SetDefault("scheduler_reminderSpec", "0 8 * * 1")
	v.SetDefault("scheduler_outboxBatch", 50)

	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	month := v.GetInt("fees_yearStartMonth")
	if month < 1 || month > 12 {
		month = 9
	}

	return &Config{
		viper:            v,
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: serverConfig{
			Address:            v.GetString("server_address"),
			DebugHost:          v.GetString("server_debugHost"),
			Host:               v.GetString("server_host"),
			ShutdownTimeout:    v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server_jwtExpirationDelta"),
			DisableReqLogs:     v.GetBool("server_disableReqLogs"),
		},
		Database: databaseConfig{
			Engine:        v.GetString("database_engine"),
			Host:          v.GetString("database_host"),
			Port:          v.GetString("database_port"),
			Name:          v.GetString("database_name"),
			User:          v.GetString("database_user"),
			Password:      v.GetString("database_password"),
			AdminUser:     v.GetString("database_adminUser"),
			AdminPassword: v.GetString("database_adminPassword"),
			DisableTLS:    v.GetBool("database_disableTLS"),
		},
		Redis: redisConfig{
			Address:  v.GetString("redis_address"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
			LockTTL:  v.GetDuration("redis_lockTTL"),
			LockWait: v.GetDuration("redis_lockWait"),
		},
		Fees: feesConfig{
			DefaultTuition:   mustDecimal(v.GetString("fees_defaultTuition")),
			DefaultOtherFees: mustDecimal(v.GetString("fees_defaultOtherFees")),
			TuitionType:      v.GetString("fees_tuitionType"),
			OtherFeesType:    v.GetString("fees_otherFeesType"),
			YearStartMonth:   time.Month(month),
			ReminderInterval: v.GetDuration("fees_reminderInterval"),
		},
		Webhook: webhookConfig{
			InboundSecret:   v.GetString("webhook_inboundSecret"),
			SignatureHeader: v.GetString("webhook_signatureHeader"),
			Timeout:         v.GetDuration("webhook_timeout"),
			MaxRetries:      v.GetInt("webhook_maxRetries"),
			BaseDelay:       v.GetDuration("webhook_baseDelay"),
		},
		Scheduler: schedulerConfig{
			OutboxSpec:   v.GetString("scheduler_outboxSpec"),
			ReminderSpec: v.GetString("scheduler_reminderSpec"),
			OutboxBatch:  v.GetInt("scheduler_outboxBatch"),
		},
	}
}

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// UseInMemoryStore reports whether no database host is configured.
func (c *Config) UseInMemoryStore() bool {
	return c.Database.Host == ""
}

func (db databaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		log.Fatalf("config.decimal(%q): %v", s, err)
	}
	return d
}
