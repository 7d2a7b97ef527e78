package config

import (
	"os"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/joho/godotenv"
)

// Environment variables holding database credentials.
const (
	EnvDBUser     = "CHURN_DB_USER"
	EnvDBPassword = "CHURN_DB_PASSWORD"
	EnvDBHost     = "CHURN_DB_HOST"
)

// LoadEnv loads KEY=value files into the process environment without
// overriding variables already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// DatabaseFromEnv reads credentials from CHURN_DB_USER, CHURN_DB_PASSWORD
// and CHURN_DB_HOST. User and host are required.
func DatabaseFromEnv() (dataset.Credentials, error) {
	c := dataset.Credentials{
		User:     os.Getenv(EnvDBUser),
		Password: os.Getenv(EnvDBPassword),
		Host:     os.Getenv(EnvDBHost),
	}
	if c.User == "" {
		return dataset.Credentials{}, errors.NewConfigurationError(EnvDBUser, "not set", "")
	}
	if c.Host == "" {
		return dataset.Credentials{}, errors.NewConfigurationError(EnvDBHost, "not set", "")
	}
	return c, nil
}

// OpenSource builds the row source the source section describes. Database
// sources are wrapped in a cache when cache_path is set; credentials are
// read only then.
func (c *Config) OpenSource() (dataset.Source, error) {
	if c.Source.Kind == "csv" {
		return &dataset.CSVSource{Path: c.Source.Path}, nil
	}
	if c.Source.UseCache && c.Source.CachePath != "" {
		if _, err := os.Stat(c.Source.CachePath); err == nil {
			return &dataset.CachedSource{CachePath: c.Source.CachePath, UseCache: true}, nil
		}
	}
	creds, err := DatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	src, err := dataset.NewSQLSource(c.Source.Kind, creds)
	if err != nil {
		return nil, err
	}
	if c.Source.CachePath == "" {
		return src, nil
	}
	return &dataset.CachedSource{Primary: src, CachePath: c.Source.CachePath, UseCache: c.Source.UseCache}, nil
}
