package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Receipts ReceiptsConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ReceiptsConfig struct {
		StorageDir       string
		SweepSchedule    string // cron spec; empty disables the sweep
		SequenceAttempts int
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig reads the configuration from the environment (prefixed with the current ENV)
// and from "config/.env.<env>" when present.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Bursar")
	v.SetDefault("secretKey", "b7u!rs4r-9x)qv0$+tz&eo=k2(j!m)#*d1(#wl3^$fnyg8pa")
	v.SetDefault("defaultFromEmail", "Bursar <noreply@localhost>")
	v.SetDefault("frontendBaseUrl", "http://localhost:8080")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", 5432)
	v.SetDefault("databaseName", "bursar")
	v.SetDefault("databaseUser", "bursar")
	v.SetDefault("databasePassword", "bursar")
	v.SetDefault("databaseAdminUser", "postgres")
	v.SetDefault("databaseAdminPassword", "postgres")
	v.SetDefault("databaseDisableTls", true)

	v.SetDefault("receiptsStorageDir", filepath.Join(os.TempDir(), "bursar", "receipts"))
	v.SetDefault("receiptsSweepSchedule", "@every 5m")
	v.SetDefault("receiptsSequenceAttempts", 3)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetInt("databasePort"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTls"),
		},
		Receipts: ReceiptsConfig{
			StorageDir:       v.GetString("receiptsStorageDir"),
			SweepSchedule:    v.GetString("receiptsSweepSchedule"),
			SequenceAttempts: v.GetInt("receiptsSequenceAttempts"),
		},
	}
}

// NewTestConfig returns the configuration used by test suites.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "secret"
	conf.Receipts.SweepSchedule = ""
	return conf
}
