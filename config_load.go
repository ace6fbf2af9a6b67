package authtokens

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by [LoadConfig],
// e.g. AUTHTOKENS_TOKENS_SIGN_SECRET.
const EnvPrefix = "AUTHTOKENS_"

// LoadConfig builds a Config from [DefaultConfig], the YAML file at path (if
// path is non-empty), and then the AUTHTOKENS_* environment. Unknown YAML
// keys are rejected. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto cfg. A non-nil environment
// replaces the process environment, which tests use.
func applyEnv(cfg *Config, environment map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
