package config

import "testing"

func TestFromEnvDefaults(t *testing.T) {
	c := FromEnv(func(string) string { return "" })

	if c.BioMartURL != DefaultBioMartURL || c.Source != DefaultSource || c.LogLevel != "info" {
		t.Fatalf("Unexpected defaults: %+v", c)
	}
	if c.Workers < 1 {
		t.Fatalf("Expected a positive worker count, got %d", c.Workers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	env := map[string]string{
		"ORTHOEXPR_BIOMART_URL": "http://localhost:9999/martservice",
		"ORTHOEXPR_SOURCE":      "bigquery",
		"ORTHOEXPR_CACHE":       "gs://bucket/prefix",
		"ORTHOEXPR_WORKERS":     "3",
	}
	c := FromEnv(func(k string) string { return env[k] })

	if c.BioMartURL != env["ORTHOEXPR_BIOMART_URL"] ||
		c.Source != "bigquery" ||
		c.CacheURI != "gs://bucket/prefix" ||
		c.Workers != 3 {
		t.Fatalf("Overrides were not applied: %+v", c)
	}

	c = FromEnv(func(k string) string {
		if k == "ORTHOEXPR_WORKERS" {
			return "zero"
		}
		return ""
	})
	if c.Workers < 1 {
		t.Fatalf("Invalid worker count should fall back to the default, got %d", c.Workers)
	}
}
