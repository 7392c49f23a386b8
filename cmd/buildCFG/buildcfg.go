// Package buildCFG turns the loaded configuration file into the typed
// configs each subsystem takes at startup.
package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"churchevents/internal/mailer"
)

type ServerConfig struct {
	Port      string
	JWTSecret string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type PixConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	secret := cfg.GetString("server.jwt_secret")
	if secret == "" {
		log.Warn().Msg("server.jwt_secret not set, using an insecure default")
		secret = "dev-secret-change-me"
	}
	return ServerConfig{Port: port, JWTSecret: secret}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}

	slaveDSNs := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns: cfg.GetInt("database.max_open_conns"),
		MaxIdleConns: cfg.GetInt("database.max_idle_conns"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	log.Info().Int("slaves", len(slaveDSNs)).Msg("database config built")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "payments.cancel.delayed"
	}
	if rc.Queue == "" {
		rc.Queue = "payments.cancel.retry"
	}
	return rc, nil
}

func BuildPixConfig(cfg *config.Config, log *zerolog.Logger) (PixConfig, error) {
	pc := PixConfig{
		BaseURL:      cfg.GetString("pix.base_url"),
		Timeout:      cfg.GetDuration("pix.timeout"),
		PollInterval: cfg.GetDuration("pix.poll_interval"),
	}
	if pc.BaseURL == "" {
		return pc, fmt.Errorf("pix.base_url is required")
	}
	if pc.Timeout == 0 {
		pc.Timeout = 15 * time.Second
	}
	if pc.PollInterval == 0 {
		pc.PollInterval = 10 * time.Second
	}
	return pc, nil
}

func BuildMailerConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Host:     cfg.GetString("smtp.host"),
		Port:     cfg.GetInt("smtp.port"),
		From:     cfg.GetString("smtp.from"),
		Password: cfg.GetString("smtp.password"),
	}
}
