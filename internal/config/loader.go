package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up when a directory is given instead of a file.
const DefaultFileName = "config.yaml"

// EnvFileName is the optional dotenv file read from the config directory.
const EnvFileName = ".env"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validStrategies = []string{"background", "visible", "direct"}
	validPolicies   = []string{"reject", "coerce"}
)

// Load reads, interpolates, verifies and validates the configuration at
// configPath. A directory is resolved to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	configDir := filepath.Dir(absPath)

	// Hash-verify before anything is parsed, when a manifest exists.
	if err := verifyConfigHashes(configDir, ScopeFiles(absPath)); err != nil {
		return nil, err
	}

	dotenv, err := readDotenv(configDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := parse([]byte(interpolateEnv(string(data), dotenv)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	applyConfigDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns configPath into an absolute path of an existing file.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFileName, absPath)
		}
	}
	return absPath, nil
}

// ScopeFiles lists the files covered by .checksums for the config at absPath.
func ScopeFiles(absPath string) []string {
	return []string{filepath.Base(absPath), EnvFileName}
}

// Discover finds the config file by checking standard locations.
// Priority order: $CINEMA_BRIDGE_CONFIG, ~/.config/cinema-bridge, /etc/cinema-bridge, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv("CINEMA_BRIDGE_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "cinema-bridge")
		if _, err := os.Stat(filepath.Join(userConfigDir, DefaultFileName)); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/cinema-bridge"
	if _, err := os.Stat(filepath.Join(systemConfigDir, DefaultFileName)); err == nil {
		return systemConfigDir, nil
	}

	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName, nil
	}

	return "", fmt.Errorf("no config found (checked: $CINEMA_BRIDGE_CONFIG, ~/.config/cinema-bridge, /etc/cinema-bridge, ./%s)", DefaultFileName)
}

// parse decodes data over Defaults. Unknown keys are rejected.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// readDotenv returns the variables of the .env beside the config, if any.
func readDotenv(configDir string) (map[string]string, error) {
	envPath := filepath.Join(configDir, EnvFileName)
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil, nil
	}
	vars, err := godotenv.Read(envPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
	}
	return vars, nil
}

// applyConfigDefaults fills values derived from other sections.
func applyConfigDefaults(cfg *Config) {
	if cfg.Script.WorkDir == "" {
		cfg.Script.WorkDir = cfg.Host.Home
	}
	if cfg.Service.LockPath == "" {
		dir := "data"
		if cfg.Journal.Path != "" {
			dir = filepath.Dir(cfg.Journal.Path)
		}
		cfg.Service.LockPath = filepath.Join(dir, "cinema-bridge.lock")
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)
	cfg.Dispatch.Strategy = strings.ToLower(strings.TrimSpace(cfg.Dispatch.Strategy))
	cfg.Validation.EnumPolicy = strings.ToLower(strings.TrimSpace(cfg.Validation.EnumPolicy))
}

// interpolateEnv replaces ${VAR} with the process environment, falling back
// to dotenv. Undefined variables are left as-is.
func interpolateEnv(input string, dotenv map[string]string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		if value, exists := dotenv[varName]; exists {
			return value
		}

		// Left in place; Validate reports it where it matters.
		return match
	})
}

// Validate performs basic validation on the configuration. Load calls it;
// callers that override fields afterwards call it again.
func Validate(cfg *Config) error {
	if !slices.Contains(validLogLevels, cfg.Service.LogLevel) {
		return fmt.Errorf("service.log_level must be one of: %s (got %q)",
			strings.Join(validLogLevels, ", "), cfg.Service.LogLevel)
	}
	if !slices.Contains(validLogFormats, cfg.Service.LogFormat) {
		return fmt.Errorf("service.log_format must be one of: %s (got %q)",
			strings.Join(validLogFormats, ", "), cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Channel.Name) == "" {
		return fmt.Errorf("channel.name is required")
	}
	if strings.TrimSpace(cfg.Channel.Method) == "" {
		return fmt.Errorf("channel.method is required")
	}

	if cfg.Script.Path == "" {
		return fmt.Errorf("script.path is required")
	}
	if !path.IsAbs(cfg.Script.Path) {
		return fmt.Errorf("script.path must be absolute (got %q)", cfg.Script.Path)
	}

	if !slices.Contains(validStrategies, cfg.Dispatch.Strategy) {
		return fmt.Errorf("dispatch.strategy must be one of: %s (got %q)",
			strings.Join(validStrategies, ", "), cfg.Dispatch.Strategy)
	}
	switch cfg.Dispatch.Strategy {
	case "background":
		if err := requireFields(map[string]string{
			"host.package": cfg.Host.Package,
			"host.service": cfg.Host.Service,
			"host.action":  cfg.Host.Action,
			"dispatch.am":  cfg.Dispatch.AM,
		}); err != nil {
			return err
		}
	case "visible":
		if err := requireFields(map[string]string{
			"host.package":  cfg.Host.Package,
			"host.activity": cfg.Host.Activity,
			"host.shell":    cfg.Host.Shell,
			"dispatch.am":   cfg.Dispatch.AM,
			"dispatch.pm":   cfg.Dispatch.PM,
		}); err != nil {
			return err
		}
	}

	if !slices.Contains(validPolicies, cfg.Validation.EnumPolicy) {
		return fmt.Errorf("validation.enum_policy must be one of: %s (got %q)",
			strings.Join(validPolicies, ", "), cfg.Validation.EnumPolicy)
	}
	seen := make(map[string]bool, len(cfg.Validation.Profiles))
	for i, p := range cfg.Validation.Profiles {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" {
			return fmt.Errorf("validation.profiles[%d] is empty", i)
		}
		if seen[key] {
			return fmt.Errorf("validation.profiles[%d]: duplicate profile %q", i, p)
		}
		seen[key] = true
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey); len(matches) > 1 {
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}

	return nil
}

// requireFields fails on the first empty value, in key order.
func requireFields(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if strings.TrimSpace(fields[k]) == "" {
			return fmt.Errorf("%s is required for this dispatch strategy", k)
		}
	}
	return nil
}
