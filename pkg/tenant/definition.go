// Package tenant holds the registry of game servers the gateway serves and
// the per-server state sessions consult on every operation.
package tenant

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Definition is one tenant as described by its YAML file.
//
// Example:
//
//	uuid: 8d2f64c3-7c3e-4a55-9d93-2b8b8d2e0f11
//	root: /srv/daemon-data/8d2f64c3-7c3e-4a55-9d93-2b8b8d2e0f11
//	user: 988
//	suspended: false
//	build:
//	  disk: 5120
type Definition struct {
	// ID is the tenant identifier returned by the panel on authentication.
	ID string `yaml:"uuid" validate:"required"`

	// Root is the host directory exposed as "/" to the tenant.
	Root string `yaml:"root" validate:"required"`

	// User is the numeric id applied as both owner uid and gid to files
	// the gateway writes.
	User int `yaml:"user" validate:"gte=0"`

	// Suspended tenants are refused at authentication.
	Suspended bool `yaml:"suspended"`

	Build BuildSettings `yaml:"build"`
}

// BuildSettings holds resource limits.
type BuildSettings struct {
	// Disk is the quota in MiB. 0 means unlimited.
	Disk int64 `yaml:"disk" validate:"gte=0"`
}

// DiskQuotaBytes converts the MiB quota to bytes.
func (d Definition) DiskQuotaBytes() int64 {
	return d.Build.Disk * 1024 * 1024
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks required fields and that Root is absolute.
func (d Definition) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid tenant definition: %w", err)
	}
	if !filepath.IsAbs(d.Root) {
		return fmt.Errorf("invalid tenant definition: root %q must be absolute", d.Root)
	}
	return nil
}

// ParseDefinition decodes and validates a tenant YAML document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to parse tenant definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ReadDefinition loads a tenant definition from a file.
func ReadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	return ParseDefinition(data)
}
