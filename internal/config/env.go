package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ApplyEnv overlays BOUNCE_* environment variables on cfg. Files, when
// given, are loaded first; a missing file is not an error.
func ApplyEnv(cfg *Config, files ...string) {
	// variables already set in the environment win over .env files
	_ = godotenv.Load(files...)

	cfg.Scene.Tempo = getEnvInt("BOUNCE_TEMPO", cfg.Scene.Tempo)
	cfg.Sequencer.Tempo = getEnvInt("BOUNCE_TEMPO", cfg.Sequencer.Tempo)
	cfg.Audio.Timbre = getEnv("BOUNCE_TIMBRE", cfg.Audio.Timbre)
	cfg.Audio.Backend = getEnv("BOUNCE_BACKEND", cfg.Audio.Backend)
	cfg.LogLevel = getEnv("BOUNCE_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = getEnv("BOUNCE_DATA_DIR", cfg.DataDir)
	cfg.Addr = getEnv("BOUNCE_ADDR", cfg.Addr)
	cfg.Validate()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
