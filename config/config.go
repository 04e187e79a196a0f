// Package config gathers the environment-driven defaults shared by the
// commands. Flags always win over anything read here.
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/carbocation/orthoexpr/logger"
)

const (
	DefaultBioMartURL = "https://www.ensembl.org/biomart/martservice"
	DefaultSource     = "biomart"
)

// Config holds the settings that are more naturally set once per machine than
// once per invocation.
type Config struct {
	BioMartURL string
	Source     string // biomart or bigquery
	CacheURI   string // directory, gs://bucket/prefix or s3://bucket/prefix; empty disables caching
	BQProject  string
	BQDataset  string
	LogLevel   string
	Workers    int
}

// Load reads a .env file from the working directory when present and then
// the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env found, using local environment")
	}

	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) Config {
	c := Config{
		BioMartURL: getenv("ORTHOEXPR_BIOMART_URL"),
		Source:     getenv("ORTHOEXPR_SOURCE"),
		CacheURI:   getenv("ORTHOEXPR_CACHE"),
		BQProject:  getenv("ORTHOEXPR_BQ_PROJECT"),
		BQDataset:  getenv("ORTHOEXPR_BQ_DATASET"),
		LogLevel:   getenv("ORTHOEXPR_LOG_LEVEL"),
		Workers:    4 * runtime.NumCPU(),
	}

	if c.BioMartURL == "" {
		c.BioMartURL = DefaultBioMartURL
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if w := getenv("ORTHOEXPR_WORKERS"); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n < 1 {
			logger.Warn("Ignoring invalid ORTHOEXPR_WORKERS", zap.String("value", w))
		} else {
			c.Workers = n
		}
	}

	return c
}
