package database

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// postgresDefaults apply unless overridden through Config.Options.
var postgresDefaults = map[string]string{
	"sslmode":          "disable",
	"application_name": "waitlist",
	"connect_timeout":  "5",
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
}

func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := map[string]string{
		"host":   valueOr(cfg.Host, "localhost"),
		"port":   strconv.Itoa(intOr(cfg.Port, 5432)),
		"user":   cfg.User,
		"dbname": cfg.Name,
	}
	if cfg.Password != "" {
		params["password"] = quotePostgresValue(cfg.Password)
	}
	for key, value := range postgresDefaults {
		params[key] = value
	}
	for key, value := range cfg.Options {
		params[key] = quotePostgresValue(value)
	}

	// Connection identity first, then options in key order.
	leading := []string{"host", "port", "user", "dbname", "password"}
	parts := make([]string, 0, len(params))
	for _, key := range leading {
		if value, ok := params[key]; ok {
			parts = append(parts, key+"="+value)
			delete(params, key)
		}
	}
	rest := make([]string, 0, len(params))
	for key := range params {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		parts = append(parts, key+"="+params[key])
	}
	return strings.Join(parts, " "), nil
}

// quotePostgresValue single-quotes values containing spaces or quotes as libpq
// expects in keyword/value strings.
func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func intOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
