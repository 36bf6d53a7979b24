package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/svcreg-labs/svcreg/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyRoot       = "root"       // registry root directory
	KeyWatch      = "watch"      // enable the directory watcher
	KeyExtensions = "extensions" // recognized file extension allow-list
	KeyDebounce   = "debounce"   // watcher quiet period
)

// Settings are the typed values the registry consumes.
type Settings struct {
	Root       string
	Watch      bool
	Extensions []string
	Debounce   time.Duration
}

// Dir returns the path to the config directory (~/.svcreg/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.svcreg/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	viper.SetDefault(KeyRoot, filepath.Join(Dir(), "services"))
	viper.SetDefault(KeyWatch, true)
	viper.SetDefault(KeyExtensions, []string{"json", "yaml", "yml"})
	viper.SetDefault(KeyDebounce, 300*time.Millisecond)

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Current returns the typed settings as currently resolved.
func Current() Settings {
	return Settings{
		Root:       viper.GetString(KeyRoot),
		Watch:      viper.GetBool(KeyWatch),
		Extensions: viper.GetStringSlice(KeyExtensions),
		Debounce:   viper.GetDuration(KeyDebounce),
	}
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
