package config

import (
	"fmt"
	"os"

	domainconfig "companionlife/domain/config"
	pkgerrors "companionlife/pkg/errors"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadDomainConfig builds the domain tunables for the environment, merges the
// optional YAML file over them and replaces unusable values with defaults.
// Replaced values are logged, never returned as errors.
func LoadDomainConfig(environment, path string, logger *zap.Logger) (*domainconfig.DomainConfig, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := domainconfig.LoadDomainConfig(environment)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tunables file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse tunables file %s: %w", path, err)
		}
		logger.Info("Loaded cadence tunables", zap.String("path", path))
	}

	for _, issue := range cfg.Sanitize() {
		err := pkgerrors.NewInvalidConfigurationError(issue.Field, issue.Value)
		logger.Warn("Invalid tunable replaced by default",
			zap.String("field", issue.Field),
			zap.Any("value", issue.Value),
			zap.Error(err),
		)
	}
	return cfg, nil
}
