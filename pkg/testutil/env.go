// Package testutil loads SAP credentials for integration tests.
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joho/godotenv"
)

var (
	envOnce   sync.Once
	envLoaded bool
)

// LoadEnv loads the nearest .env file, searching the current directory and up
// to 5 parents. Variables already set in the environment take precedence.
// Safe to call multiple times - only loads once.
func LoadEnv() {
	envOnce.Do(func() {
		dir, err := os.Getwd()
		if err != nil {
			return
		}

		for range 6 {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				if godotenv.Load(envPath) == nil {
					envLoaded = true
					return
				}
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	})
}

// EnvLoaded returns true if .env file was successfully loaded.
func EnvLoaded() bool {
	return envLoaded
}

// SAPEnv holds the connection settings read from the environment.
type SAPEnv struct {
	URL      string
	User     string
	Password string
	Client   string
	Language string
	Insecure bool
}

// RequireSAP loads .env and returns the SAP connection settings, skipping the
// test unless SAP_URL, SAP_USER and SAP_PASSWORD are all set.
func RequireSAP(t testing.TB) SAPEnv {
	t.Helper()
	LoadEnv()

	env := SAPEnv{
		URL:      os.Getenv("SAP_URL"),
		User:     os.Getenv("SAP_USER"),
		Password: os.Getenv("SAP_PASSWORD"),
		Client:   os.Getenv("SAP_CLIENT"),
		Language: os.Getenv("SAP_LANGUAGE"),
		Insecure: os.Getenv("SAP_INSECURE") == "true",
	}
	if env.URL == "" || env.User == "" || env.Password == "" {
		t.Skip("SAP_URL, SAP_USER, SAP_PASSWORD required for integration tests (set in .env or environment)")
	}
	if env.Client == "" {
		env.Client = "001"
	}
	if env.Language == "" {
		env.Language = "EN"
	}
	return env
}
