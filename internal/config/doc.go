// Package config manages deployment settings for the registry: the root
// definition directory, the watcher flag, the recognized extension set,
// and the debounce interval. Values come from ~/.svcreg/config.yaml with
// SVCREG_-prefixed environment overrides.
package config
