// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// LogLevelDebug enables debug logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default log level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"

	// PackagePlaceholder is replaced by the package file or name in package
	// manager command templates.
	PackagePlaceholder = "PKG"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

type (
	// LogLevel is the minimum level that is logged.
	LogLevel string

	// InvalidConfigError lists every field that failed validation.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// PathsConfig holds the directories moduled reads and writes.
	PathsConfig struct {
		// StateDir holds one directory per installed module.
		StateDir string `json:"state_dir" mapstructure:"state_dir"`
		// BackendDir receives files from an archive's backend/ subtree.
		BackendDir string `json:"backend_dir" mapstructure:"backend_dir"`
		// FrontendDir receives files from an archive's frontend/ subtree.
		FrontendDir string `json:"frontend_dir" mapstructure:"frontend_dir"`
		// CacheDir holds downloaded archives and extraction scratch space.
		CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`
	}

	// DownloadConfig configures archive downloads.
	DownloadConfig struct {
		Retries int           `json:"retries" mapstructure:"retries"`
		Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// PackagesConfig holds the OS package manager command templates.
	PackagesConfig struct {
		Install   string `json:"install" mapstructure:"install"`
		Uninstall string `json:"uninstall" mapstructure:"uninstall"`
	}

	// StorageConfig describes how to make read-only storage writable.
	StorageConfig struct {
		// ReadOnly enables the remount commands around every mutating operation.
		ReadOnly  bool   `json:"read_only" mapstructure:"read_only"`
		RemountRW string `json:"remount_rw" mapstructure:"remount_rw"`
		RemountRO string `json:"remount_ro" mapstructure:"remount_ro"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
		// File enables a rotating log file in addition to stderr.
		File       string `json:"file" mapstructure:"file"`
		MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
		MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	}

	// Config is the root configuration structure.
	Config struct {
		Paths              PathsConfig    `json:"paths" mapstructure:"paths"`
		Catalog            string         `json:"catalog" mapstructure:"catalog"`
		ProtectedLibraries []string       `json:"protected_libraries" mapstructure:"protected_libraries"`
		Download           DownloadConfig `json:"download" mapstructure:"download"`
		Packages           PackagesConfig `json:"packages" mapstructure:"packages"`
		Storage            StorageConfig  `json:"storage" mapstructure:"storage"`
		Log                LogConfig      `json:"log" mapstructure:"log"`
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate returns an error if the log level is not recognized.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, string(l))
	}
}

// Validate checks constraints that the CUE schema cannot see, such as
// values supplied through defaults or environment overrides.
func (c *Config) Validate() error {
	var errs []error

	for name, dir := range map[string]string{
		"paths.state_dir":    c.Paths.StateDir,
		"paths.backend_dir":  c.Paths.BackendDir,
		"paths.frontend_dir": c.Paths.FrontendDir,
		"paths.cache_dir":    c.Paths.CacheDir,
	} {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}

	for i, pattern := range c.ProtectedLibraries {
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("protected_libraries[%d]: %w", i, err))
		}
	}

	if c.Download.Retries < 0 {
		errs = append(errs, fmt.Errorf("download.retries must not be negative"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("download.timeout must be positive"))
	}

	if !strings.Contains(c.Packages.Install, "$"+PackagePlaceholder) {
		errs = append(errs, fmt.Errorf("packages.install must reference $%s", PackagePlaceholder))
	}
	if !strings.Contains(c.Packages.Uninstall, "$"+PackagePlaceholder) {
		errs = append(errs, fmt.Errorf("packages.uninstall must reference $%s", PackagePlaceholder))
	}

	if c.Storage.ReadOnly && (c.Storage.RemountRW == "" || c.Storage.RemountRO == "") {
		errs = append(errs, fmt.Errorf("storage.read_only requires remount_rw and remount_ro"))
	}

	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir:    "/var/lib/moduled/modules",
			BackendDir:  "/opt/moduled/backend",
			FrontendDir: "/opt/moduled/frontend",
			CacheDir:    "/var/cache/moduled",
		},
		Catalog:            "/etc/moduled/catalog.toml",
		ProtectedLibraries: []string{"libc.so*", "libpthread.so*", "libstdc++.so*", "ld-linux*.so*"},
		Download: DownloadConfig{
			Retries: 2,
			Timeout: 5 * time.Minute,
		},
		Packages: PackagesConfig{
			Install:   `dpkg -i "$PKG"`,
			Uninstall: `apt-get remove -y "$PKG"`,
		},
		Storage: StorageConfig{
			ReadOnly:  false,
			RemountRW: "mount -o remount,rw /",
			RemountRO: "mount -o remount,ro /",
		},
		Log: LogConfig{
			Level:      LogLevelInfo,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
