package app

import (
	"strings"

	"github.com/charlesng35/waitlist/internal/database"
	"github.com/charlesng35/waitlist/internal/store"
)

// ConnectionConfig converts the application database configuration into the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}

	var auth DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = c.Postgres
	case "mysql":
		auth = c.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = strings.TrimSpace(auth.Password)
	return dbCfg
}

// StoreConfig converts the Redis configuration into the store package representation.
func (c RedisConfig) StoreConfig() store.RedisConfig {
	return store.RedisConfig{
		Address:   strings.TrimSpace(c.Address),
		Username:  strings.TrimSpace(c.Username),
		Password:  c.Password,
		DB:        c.DB,
		TLS:       c.TLS,
		Timeout:   c.Timeout,
		KeyPrefix: c.KeyPrefix,
	}
}

// StoreConfig converts the Badger configuration into the store package representation.
func (c BadgerConfig) StoreConfig() store.BadgerConfig {
	return store.BadgerConfig{
		Path:       strings.TrimSpace(c.Path),
		InMemory:   c.InMemory,
		SyncWrites: c.SyncWrites,
	}
}
