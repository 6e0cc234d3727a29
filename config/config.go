// Package config loads host settings from a configuration Provider.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/imdario/mergo"
	"github.com/jobhost/bindings/metrics"
	"github.com/jobhost/bindings/storage/s3"
)

type (
	// Provider defines the api to allow configuration
	// providers to expose their configuration information.
	Provider interface {
		Unmarshal(path string, flat bool, output any) error
	}

	// Settings configure a host.
	Settings struct {
		// Functions is the path of a YAML or HCL function manifest.
		Functions string `path:"functions"`
		// Strict fails functions whose route parameters may not resolve.
		Strict    bool              `path:"strict"`
		Timeout   time.Duration     `path:"timeout" validate:"gte=0"`
		CamelCase bool              `path:"camelCase"`
		Log       LogSettings       `path:"log"`
		Storage   Storages          `path:"storage" validate:"dive"`
		Metrics   *metrics.Config   `path:"metrics"`
		Names     map[string]string `path:"names"`
	}

	// LogSettings configure the host logger.
	LogSettings struct {
		Verbosity int    `path:"verbosity" validate:"gte=0,lte=10"`
		Output    string `path:"output" validate:"omitempty,oneof=stdout stderr"`
		Json      bool   `path:"json"`
	}

	// StorageSettings configure one storage account.
	StorageSettings struct {
		// Path of a bbolt database holding blobs, queues and tables.
		Path string `path:"path" validate:"required_without=S3"`
		// S3 stores the blobs of the account in a bucket.
		S3 *s3.Config `path:"s3"`
	}

	// Storages maps connection names to storage accounts.
	// The account named DefaultConnection serves bindings
	// without a connection.
	Storages map[string]StorageSettings
)

// DefaultConnection names the default storage account.
const DefaultConnection = "default"

// Connection maps a configured account name to a binding connection.
func Connection(name string) string {
	if strings.EqualFold(name, DefaultConnection) {
		return ""
	}
	return name
}

// DefaultSettings fill in the settings left unset.
var DefaultSettings = Settings{
	Timeout: 5 * time.Minute,
	Log:     LogSettings{Output: "stderr"},
}

// Defaults merges DefaultSettings into the unset fields of s.
func (s *Settings) Defaults() error {
	return mergo.Merge(s, DefaultSettings)
}

// Validate checks the s3 settings of every storage account.
func (s *Settings) Validate() error {
	for name, storage := range s.Storage {
		if storage.S3 != nil {
			if err := storage.S3.Validate(); err != nil {
				return fmt.Errorf("storage %q: %w", name, err)
			}
		}
	}
	return nil
}

// Load returns the Settings at path.
func Load(provider Provider, path string) (Settings, error) {
	return Get[Settings](NewFactory(provider), path)
}
