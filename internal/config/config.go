// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moduled/moduled/internal/issue"
	"github.com/moduled/moduled/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "moduled"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. MODULED_DOWNLOAD_RETRIES.
	EnvPrefix = "MODULED"
	// SystemConfigDir is consulted after the user config directory.
	SystemConfigDir = "/etc/moduled"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the user configuration directory:
// $XDG_CONFIG_HOME/moduled, defaulting to ~/.config/moduled.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading. It returns the
// loaded config and the path of the file it was read from ("" for defaults).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'moduled config init' to write a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		candidates := make([]string, 0, 2)
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		candidates = append(candidates, filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt))
		if opts.ConfigDirPath == "" && configDirOverride == "" {
			candidates = append(candidates, filepath.Join(SystemConfigDir, ConfigFileName+"."+ConfigFileExt))
		}
		for _, candidate := range candidates {
			if fileExists(candidate) {
				resolvedPath = candidate
				break
			}
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Run 'moduled config show' to see the effective configuration").
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	v.SetDefault("paths.backend_dir", defaults.Paths.BackendDir)
	v.SetDefault("paths.frontend_dir", defaults.Paths.FrontendDir)
	v.SetDefault("paths.cache_dir", defaults.Paths.CacheDir)
	v.SetDefault("catalog", defaults.Catalog)
	v.SetDefault("protected_libraries", defaults.ProtectedLibraries)
	v.SetDefault("download.retries", defaults.Download.Retries)
	v.SetDefault("download.timeout", defaults.Download.Timeout)
	v.SetDefault("packages.install", defaults.Packages.Install)
	v.SetDefault("packages.uninstall", defaults.Packages.Uninstall)
	v.SetDefault("storage.read_only", defaults.Storage.ReadOnly)
	v.SetDefault("storage.remount_rw", defaults.Storage.RemountRW)
	v.SetDefault("storage.remount_ro", defaults.Storage.RemountRO)
	v.SetDefault("log.level", string(defaults.Log.Level))
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against the #Config schema and
// merges its contents into Viper, keeping defaults for omitted fields.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Unify(configSchema, data, "#Config", path)
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file into dir unless one
// already exists. It returns the path of the config file.
func CreateDefaultConfig(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// moduled configuration file\n\n")

	sb.WriteString("paths: {\n")
	fmt.Fprintf(&sb, "\tstate_dir:    %q\n", cfg.Paths.StateDir)
	fmt.Fprintf(&sb, "\tbackend_dir:  %q\n", cfg.Paths.BackendDir)
	fmt.Fprintf(&sb, "\tfrontend_dir: %q\n", cfg.Paths.FrontendDir)
	fmt.Fprintf(&sb, "\tcache_dir:    %q\n", cfg.Paths.CacheDir)
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "catalog: %q\n\n", cfg.Catalog)

	sb.WriteString("protected_libraries: [\n")
	for _, pattern := range cfg.ProtectedLibraries {
		fmt.Fprintf(&sb, "\t%q,\n", pattern)
	}
	sb.WriteString("]\n\n")

	sb.WriteString("download: {\n")
	fmt.Fprintf(&sb, "\tretries: %d\n", cfg.Download.Retries)
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Download.Timeout.String())
	sb.WriteString("}\n\n")

	sb.WriteString("packages: {\n")
	fmt.Fprintf(&sb, "\tinstall:   %q\n", cfg.Packages.Install)
	fmt.Fprintf(&sb, "\tuninstall: %q\n", cfg.Packages.Uninstall)
	sb.WriteString("}\n\n")

	sb.WriteString("storage: {\n")
	fmt.Fprintf(&sb, "\tread_only:  %v\n", cfg.Storage.ReadOnly)
	fmt.Fprintf(&sb, "\tremount_rw: %q\n", cfg.Storage.RemountRW)
	fmt.Fprintf(&sb, "\tremount_ro: %q\n", cfg.Storage.RemountRO)
	sb.WriteString("}\n\n")

	sb.WriteString("log: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", string(cfg.Log.Level))
	if cfg.Log.File != "" {
		fmt.Fprintf(&sb, "\tfile: %q\n", cfg.Log.File)
	}
	fmt.Fprintf(&sb, "\tmax_size_mb: %d\n", cfg.Log.MaxSizeMB)
	fmt.Fprintf(&sb, "\tmax_backups: %d\n", cfg.Log.MaxBackups)
	sb.WriteString("}\n")

	return sb.String()
}
