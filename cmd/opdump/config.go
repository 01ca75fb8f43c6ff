package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// config is read from the YAML file named by -config or OPDUMP_CONFIG.
// Flags override it; OPDUMP_* variables, including those in .env,
// override the file.
type config struct {
	// Schemas are YAML schema files registered before decoding.
	Schemas []string `yaml:"schemas"`
	// WIT are WIT packages in JSON form registered before decoding.
	WIT []string `yaml:"wit"`
	// Store is the buffer store location used by -extract.
	Store string `yaml:"store"`
	// Color is auto, always or never.
	Color string `yaml:"color"`
}

func loadConfig(path, envFile string) (config, error) {
	cfg := config{Color: "auto"}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if path == "" {
		path = os.Getenv("OPDUMP_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := os.Getenv("OPDUMP_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("OPDUMP_COLOR"); v != "" {
		cfg.Color = v
	}
	switch cfg.Color {
	case "auto", "always", "never":
	default:
		return cfg, fmt.Errorf("color must be auto, always or never, got %q", cfg.Color)
	}
	return cfg, nil
}
