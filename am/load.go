package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/prism/errors"
)

// EnvConfigFile names an extra config file merged above every other file.
const EnvConfigFile = "PRISM_CONFIG"

var (
	mu     sync.Mutex
	cached *Config
	shared *viper.Viper
)

// Load returns the process configuration, reading it on first use.
// Precedence, lowest first: defaults, /etc/prism, ~/.prism, the nearest
// prism.toml up the tree, $PRISM_CONFIG, PRISM_* variables.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	cfg, err := LoadWithViper(sharedViper())
	if err != nil {
		return nil, err
	}
	cached = cfg
	return cfg, nil
}

// GetViper exposes the merged sources for key lookups such as `prism am get`.
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return sharedViper()
}

// LoadWithViper decodes and validates v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

// LoadFromFile reads a single TOML file over the defaults, ignoring the cascade.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return LoadWithViper(v)
}

// Reset drops the cached configuration. Tests call it between cases.
func Reset() {
	mu.Lock()
	cached, shared = nil, nil
	mu.Unlock()
}

func sharedViper() *viper.Viper {
	if shared != nil {
		return shared
	}
	v := viper.New()
	v.SetEnvPrefix("PRISM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v, ConfigPaths())
	shared = v
	return v
}

// ConfigPaths lists the config files consulted, lowest precedence first.
// Missing files are included; callers stat them.
func ConfigPaths() []string {
	home, _ := os.UserHomeDir()
	paths := []string{
		"/etc/prism/config.toml",
		filepath.Join(home, ".prism", "config.toml"),
	}
	if project := nearestProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	if explicit := os.Getenv(EnvConfigFile); explicit != "" {
		paths = append(paths, explicit)
	}
	return paths
}

func nearestProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, "prism.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles layers each readable file onto v in order. Unreadable
// files are skipped; `prism am validate` reports them.
func mergeConfigFiles(v *viper.Viper, paths []string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		layer := viper.New()
		layer.SetConfigFile(path)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			continue
		}
		_ = v.MergeConfigMap(layer.AllSettings())
	}
}
