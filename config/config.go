// Package config loads server settings from the environment.
package config

import (
	"os"
)

type Config struct {
	// DBPath is the SQLite database file, ":memory:" for ephemeral runs.
	DBPath string
	Port   string
	Env    string
}

func Load() *Config {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/finshare.db"
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &Config{
		DBPath: dbPath,
		Port:   port,
		Env:    env,
	}
}
