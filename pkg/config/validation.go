package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittosftp/internal/telemetry"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both uppercase and lowercase levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil {
		return fmt.Errorf("remote.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.url: scheme must be http or https, got %q", u.Scheme)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.SFTP.Port {
		return fmt.Errorf("metrics.port: conflicts with sftp.port (%d)", cfg.SFTP.Port)
	}

	for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
		if !telemetry.ValidProfileType(pt) {
			return fmt.Errorf("telemetry.profiling.profile_types: unknown type %q (valid: %s)",
				pt, strings.Join(telemetry.ProfileTypeNames(), ", "))
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
