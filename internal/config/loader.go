package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New()

// Loader reads conduit's YAML config from disk, expands environment
// variable references, and validates the result.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a config loader. dotenvPath, if non-empty, is loaded
// into the process environment before the config file is read (so that
// ${VAR} references in the YAML can see it).
func NewLoader(dotenvPath string) *Loader {
	if dotenvPath != "" {
		_ = godotenv.Load(dotenvPath) // a missing .env is not an error
	}
	return &Loader{k: koanf.New(".")}
}

// Load reads path (YAML), expands env vars, applies defaults, and validates.
func (l *Loader) Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expanded := ExpandEnvVarsDeep(l.k.Raw()).(map[string]any)
	merged := koanf.New(".")
	if err := merged.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("config: expand env vars: %w", err)
	}

	var cfg Config
	if err := merged.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.SetDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
