package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config carries the environment settings the server needs to run.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	ServerPort  string
	UploadDir   string
}

// Load reads .env (if present) and the process environment.
// Missing required values are fatal at startup.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ServerPort:  os.Getenv("PORT"),
		UploadDir:   os.Getenv("UPLOAD_DIR"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "3000"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}

	return cfg
}
