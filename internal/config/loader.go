package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-version"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvArtifactsBucket overrides upload.bucket when set.
const EnvArtifactsBucket = "ARTIFACTS_BUCKET"

// supportedSchema is the range of schema versions this build understands.
var supportedSchema = version.MustConstraints(version.NewConstraint(">= 1.0, < 2.0"))

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result. An empty path loads the defaults only.
//
// Error cases:
//   - File not found or cannot be read
//   - Invalid YAML syntax
//   - Validation failure (unsupported schema version, invalid values)
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return nil, fmt.Errorf("config validation failed for %q: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if bucket, ok := os.LookupEnv(EnvArtifactsBucket); ok {
		cfg.Upload.Bucket = bucket
	}
}

func checkSchemaVersion(raw string) error {
	if raw == "" {
		return NewConfigError("schema_version is required")
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return NewConfigError(fmt.Sprintf("invalid schema_version %q: %v", raw, err))
	}
	if !supportedSchema.Check(v) {
		return NewConfigError(fmt.Sprintf(
			"unsupported schema_version: %q (expected %s)", raw, supportedSchema))
	}
	return nil
}
