package config

// Config represents the complete cinema-bridge configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Channel    ChannelConfig    `yaml:"channel"`
	Host       HostConfig       `yaml:"host"`
	Script     ScriptConfig     `yaml:"script"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Validation ValidationConfig `yaml:"validation"`
	API        APIConfig        `yaml:"api,omitempty"`
	Journal    JournalConfig    `yaml:"journal"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LockPath keeps one `system start` per config. Defaults to
	// cinema-bridge.lock beside the journal.
	LockPath string `yaml:"lock_path,omitempty"`
}

// ChannelConfig names the method channel the front-end calls into.
type ChannelConfig struct {
	Name       string   `yaml:"name"`
	Method     string   `yaml:"method"`
	Aliases    []string `yaml:"aliases,omitempty"`
	AckMessage string   `yaml:"ack_message"`
}

// HostConfig addresses the external execution host.
type HostConfig struct {
	Package  string       `yaml:"package"`
	Service  string       `yaml:"service"`
	Activity string       `yaml:"activity"`
	Action   string       `yaml:"action"`
	User     string       `yaml:"user,omitempty"`
	Home     string       `yaml:"home"`
	Shell    string       `yaml:"shell"`
	Extras   ExtrasConfig `yaml:"extras"`
}

// ExtrasConfig are the intent extra keys of the host's run-command entry point.
type ExtrasConfig struct {
	Path       string `yaml:"path"`
	Arguments  string `yaml:"arguments"`
	WorkDir    string `yaml:"workdir"`
	Background string `yaml:"background"`
}

// ScriptConfig locates the processing script.
type ScriptConfig struct {
	Path    string `yaml:"path"`
	WorkDir string `yaml:"workdir,omitempty"` // defaults to host.home
}

// DispatchConfig selects the hand-off strategy and the host tooling.
type DispatchConfig struct {
	Strategy string   `yaml:"strategy"` // background | visible | direct
	AM       string   `yaml:"am"`
	PM       string   `yaml:"pm"`
	Launcher []string `yaml:"launcher,omitempty"` // e.g. [adb, shell]
}

// ValidationConfig controls enum handling.
type ValidationConfig struct {
	EnumPolicy string   `yaml:"enum_policy"` // reject | coerce
	Profiles   []string `yaml:"profiles,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the bearer token required on every route except /healthz.
	// Empty disables auth.
	APIKey string `yaml:"api_key"`
}

// JournalConfig defines dispatch journal storage.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ChecksumManifest is the on-disk format of .checksums.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

const termuxHome = "/data/data/com.termux/files/home"

// Defaults returns a Config targeting Termux on the same device.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "cinema-bridge",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Channel: ChannelConfig{
			Name:       "cinema/termux",
			Method:     "processAudio",
			Aliases:    []string{"runEngine"},
			AckMessage: "processing started",
		},
		Host: HostConfig{
			Package:  "com.termux",
			Service:  "com.termux.app.RunCommandService",
			Activity: "com.termux.app.TermuxActivity",
			Action:   "com.termux.RUN_COMMAND",
			Home:     termuxHome,
			Shell:    "/data/data/com.termux/files/usr/bin/bash",
			Extras: ExtrasConfig{
				Path:       "com.termux.RUN_COMMAND_PATH",
				Arguments:  "com.termux.RUN_COMMAND_ARGUMENTS",
				WorkDir:    "com.termux.RUN_COMMAND_WORKDIR",
				Background: "com.termux.RUN_COMMAND_BACKGROUND",
			},
		},
		Script: ScriptConfig{
			Path: termuxHome + "/cinema_engine/run.sh",
		},
		Dispatch: DispatchConfig{
			Strategy: "background",
			AM:       "am",
			PM:       "pm",
		},
		Validation: ValidationConfig{
			EnumPolicy: "reject",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8087",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./data/journal.db",
		},
	}
}
