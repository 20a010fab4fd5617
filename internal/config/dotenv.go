package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads environment variables from a .env file before any
// config is parsed. The first successful call wins; existing environment
// variables are never overridden. Set NO_DOTENV=1 to skip entirely, or
// ENV_FILE to point at a specific file.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = godotenv.Load(envFile)
		return
	}

	// Walk up from this source file toward the module root so tests running
	// in nested packages still pick up the repo-level .env.
	if _, file, _, ok := runtime.Caller(0); ok {
		dir := filepath.Dir(file)
		for i := 0; i < 8; i++ {
			_ = godotenv.Load(filepath.Join(dir, ".env"))
			if fileExists(filepath.Join(dir, "go.mod")) {
				return
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		return
	}

	_ = godotenv.Load(".env")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// resolvePath resolves a file path relative to a base directory, expanding
// environment variables first.
func resolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}
