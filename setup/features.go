package setup

import (
	"fmt"
	"io"
	"os"

	"github.com/jobhost/bindings/codec"
	"github.com/jobhost/bindings/config"
	koanfp "github.com/jobhost/bindings/config/koanf"
	"github.com/jobhost/bindings/log"
	"github.com/jobhost/bindings/metrics"
	"github.com/jobhost/bindings/names"
	"github.com/jobhost/bindings/storage"
	"github.com/jobhost/bindings/storage/bolt"
	"github.com/jobhost/bindings/storage/s3"
	"github.com/knadh/koanf"
)

type (
	// MetricsInstaller exports the binding pipeline to prometheus.
	MetricsInstaller struct {
		config    metrics.Config
		collector *metrics.Collector
	}

	// StorageInstaller opens the configured storage accounts.
	StorageInstaller struct {
		storages config.Storages
	}

	// SettingsInstaller applies host settings.
	SettingsInstaller struct {
		settings config.Settings
		names    []names.Resolver
		metrics  *MetricsInstaller
	}
)

var (
	loggingTag byte
	metricsTag byte
)

// Logging creates the host logger from settings.
func Logging(settings config.LogSettings) Feature {
	return FeatureFunc(func(setup *Builder) error {
		if !setup.Tag(&loggingTag) {
			return nil
		}
		var w io.Writer = os.Stderr
		if settings.Output == "stdout" {
			w = os.Stdout
		}
		setup.Logger(log.New(w, log.Options{
			Verbosity: settings.Verbosity,
			Json:      settings.Json,
			Timestamp: true,
		}))
		return nil
	})
}

// Metrics creates a prometheus collector observing every invocation.
func Metrics(config metrics.Config) *MetricsInstaller {
	return &MetricsInstaller{config: config}
}

func (m *MetricsInstaller) Install(setup *Builder) error {
	if !setup.Tag(&metricsTag) {
		return nil
	}
	collector, err := metrics.NewCollector(m.config)
	if err != nil {
		return err
	}
	m.collector = collector
	setup.Metrics(log.Observe(setup.Log().WithName("metrics"), 2, collector))
	return nil
}

// Collector returns the collector once installed.
func (m *MetricsInstaller) Collector() *metrics.Collector {
	return m.collector
}

// Storage opens a bbolt store for every account with a path and
// an S3 bucket for every account with s3 settings.  A bucket
// replaces the blobs of the bbolt store of the same account.
func Storage(storages config.Storages) *StorageInstaller {
	return &StorageInstaller{storages}
}

func (s *StorageInstaller) Install(setup *Builder) error {
	for name, settings := range s.storages {
		connection := config.Connection(name)
		account := &storage.Account{}
		var closer io.Closer
		if settings.Path != "" {
			store := bolt.NewStorage(settings.Path)
			store.Log = setup.Log().WithName("bolt")
			if err := store.Open(); err != nil {
				return fmt.Errorf("storage %q: %w", name, err)
			}
			account, closer = store.Account(), store
		}
		if cfg := settings.S3; cfg != nil {
			client, err := s3.NewClient(setup.Context(), *cfg)
			if err != nil {
				if closer != nil {
					_ = closer.Close()
				}
				return fmt.Errorf("storage %q: %w", name, err)
			}
			account.Blobs = s3.New(client, cfg.Bucket)
		}
		setup.Account(connection, account, closer)
	}
	return nil
}

// Settings applies host settings and installs the features
// they configure.
func Settings(settings config.Settings) *SettingsInstaller {
	installer := &SettingsInstaller{settings: settings}
	if settings.Metrics != nil {
		installer.metrics = Metrics(*settings.Metrics)
	}
	return installer
}

// Koanf loads the host settings at path of k.  The names
// below path resolve %name% tokens.
func Koanf(k *koanf.Koanf, path string) (*SettingsInstaller, error) {
	settings, err := config.Load(koanfp.P(k), path)
	if err != nil {
		return nil, err
	}
	prefix := "names"
	if path != "" {
		prefix = path + k.Delim() + prefix
	}
	installer := Settings(settings)
	installer.settings.Names = nil
	return installer.WithNames(koanfp.Names(k, prefix)), nil
}

// WithNames adds resolvers consulted before the configured names.
func (s *SettingsInstaller) WithNames(resolvers ...names.Resolver) *SettingsInstaller {
	s.names = append(s.names, resolvers...)
	return s
}

// Metrics returns the metrics feature, nil unless configured.
func (s *SettingsInstaller) Metrics() *MetricsInstaller {
	return s.metrics
}

func (s *SettingsInstaller) DependsOn() []Feature {
	features := []Feature{Storage(s.settings.Storage)}
	if s.metrics != nil {
		features = append(features, s.metrics)
	}
	return features
}

func (s *SettingsInstaller) Install(setup *Builder) error {
	if err := Logging(s.settings.Log).Install(setup); err != nil {
		return err
	}
	setup.Names(s.names...)
	if len(s.settings.Names) > 0 {
		setup.Names(names.Map(s.settings.Names))
	}
	if s.settings.CamelCase {
		setup.Codec(codec.CamelCase)
	}
	setup.Strict(s.settings.Strict).
		Timeout(s.settings.Timeout).
		Manifest(s.settings.Functions)
	return nil
}
