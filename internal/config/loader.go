package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every setting when read from the environment,
	// e.g. BACKLOG_SERVER_PORT.
	EnvPrefix = "BACKLOG"

	// DefaultEnvFile is loaded from the working directory when present.
	DefaultEnvFile = ".env"

	appDirName     = ".backlog-agent"
	configFileName = "config.json"
)

// envAliases maps config keys to the conventional variable names of the
// services they configure. The prefixed form is checked first.
var envAliases = map[string]string{
	"ai.openai.api_key":               "OPENAI_API_KEY",
	"ai.openai.model":                 "OPENAI_MODEL",
	"ai.azure_openai.endpoint":        "AZURE_OPENAI_ENDPOINT",
	"ai.azure_openai.api_key":         "AZURE_OPENAI_API_KEY",
	"ai.azure_openai.deployment_name": "AZURE_OPENAI_DEPLOYMENT_NAME",
	"ai.azure_openai.api_version":     "AZURE_OPENAI_API_VERSION",
	"ai.anthropic.api_key":            "ANTHROPIC_API_KEY",
	"devops.organization_url":         "AZURE_DEVOPS_ORG_URL",
	"devops.project":                  "AZURE_DEVOPS_PROJECT",
	"devops.personal_access_token":    "AZURE_DEVOPS_PAT",
	"tracing.otlp_endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// configKeys lists every leaf setting so that environment overrides apply
// even when no config file mentions the key.
var configKeys = []string{
	"ai.provider",
	"ai.openai.api_key",
	"ai.openai.model",
	"ai.azure_openai.endpoint",
	"ai.azure_openai.api_key",
	"ai.azure_openai.deployment_name",
	"ai.azure_openai.api_version",
	"ai.anthropic.api_key",
	"ai.anthropic.model",
	"agent.instructions",
	"agent.temperature",
	"agent.max_tokens",
	"agent.max_messages",
	"agent.max_tool_turns",
	"agent.tool_timeout_seconds",
	"devops.organization_url",
	"devops.project",
	"devops.personal_access_token",
	"devops.api_version",
	"devops.timeout_seconds",
	"server.host",
	"server.port",
	"server.allow_all_origins",
	"server.session_idle_minutes",
	"server.rate_limit.requests",
	"server.rate_limit.window_seconds",
	"logging.level",
	"logging.file",
	"logging.pretty",
	"logging.redaction",
	"logging.audit_file",
	"tracing.otlp_endpoint",
	"tracing.insecure",
	"tracing.sampling_rate",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFiles   []string
}

// NewLoader creates a new config loader. When no env files are given the
// loader reads ./.env if it exists.
func NewLoader(configPath string, envFiles ...string) *Loader {
	return &Loader{
		configPath: configPath,
		envFiles:   envFiles,
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, in increasing order of precedence.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "backlog-agent.log")
	}

	return cfg, nil
}

// loadEnvFiles populates the process environment from dotenv files without
// overriding variables that are already set.
func (l *Loader) loadEnvFiles() error {
	if len(l.envFiles) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		if err := godotenv.Load(DefaultEnvFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
		}
		return nil
	}

	for _, path := range l.envFiles {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

func bindEnv(v *viper.Viper) error {
	for _, key := range configKeys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if alias, ok := envAliases[key]; ok {
			names = append(names, alias)
		}
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("agent", cfg.Agent)
	v.Set("devops", cfg.DevOps)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	// the file carries credentials
	if err := os.Chmod(configPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, appDirName, configFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string, envFiles ...string) (*Config, error) {
	return NewLoader(configPath, envFiles...).Load()
}
