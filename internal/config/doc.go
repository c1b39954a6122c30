// Package config defines packaging settings used by the CLI and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the extension source directory, the artifacts
// directory, extra ignore patterns and the watch-mode debounce interval.
// Command-line flags override values loaded from the settings file.
package config
