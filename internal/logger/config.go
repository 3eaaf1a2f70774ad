package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel  string                  `yaml:"default_level" mapstructure:"default_level" json:"default_level"` // default log level for all modules
	Timezone      string                  `yaml:"timezone" mapstructure:"timezone" json:"timezone"`                // "Local", "UTC", or IANA name
	Console       *ConsoleOutput          `yaml:"console" mapstructure:"console" json:"console"`                   // console output configuration
	FileOutput    *FileOutput             `yaml:"file_output" mapstructure:"file_output" json:"file_output"`       // main log file configuration
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" mapstructure:"modules" json:"modules"`                   // per-module output configuration
	ModuleLevels  map[string]string       `yaml:"module_levels" mapstructure:"module_levels" json:"module_levels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output is text without timestamps; the supervisor adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Level   string `yaml:"level" mapstructure:"level" json:"level"`
}

// FileOutput represents file logging configuration.
// File output is JSON with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Path    string `yaml:"path" mapstructure:"path" json:"path"`
	Level   string `yaml:"level" mapstructure:"level" json:"level"`
}

// ModuleOutput routes one module to a dedicated file
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	FilePath    string `yaml:"file_path" mapstructure:"file_path" json:"file_path"`
	Level       string `yaml:"level" mapstructure:"level" json:"level"`
	ConsoleAlso bool   `yaml:"console_also" mapstructure:"console_also" json:"console_also"`
}

// Default values for logging configuration. Keep in sync with conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/patientkeeper.log"
	DefaultAccessLogPath  = "logs/access.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// applyConfigDefaults fills nil sections so older config files keep logging
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled: DefaultFileEnabled,
			Path:    DefaultLogPath,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = make(map[string]ModuleOutput)
	}
}
