package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/webext-packager/internal/logger"
)

// Filename is the manifest file expected at the source directory root.
const Filename = "manifest.json"

// Data carries the manifest fields the packager reads. It is never mutated
// after loading.
type Data struct {
	// Name is the extension display name, possibly containing
	// __MSG_key__ placeholder tokens.
	Name string
	// Version is the extension version string.
	Version string
	// DefaultLocale selects the message catalog for name localization;
	// empty when the extension is not localized.
	DefaultLocale string
	// ID is the add-on id from browser_specific_settings (or the legacy
	// applications key). Used for diagnostics only; absence is not an error.
	ID string
}

// Error reports a missing or invalid manifest. It is fatal to the build and
// surfaced before any archive work begins.
type Error struct {
	// File is the manifest path.
	File string
	// Err is the underlying failure.
	Err error
}

// Error renders the failure with the manifest path.
func (e *Error) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.File, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// manifestFile mirrors the JSON layout of the fields the packager reads.
type manifestFile struct {
	Name                    string           `json:"name"`
	Version                 string           `json:"version"`
	DefaultLocale           string           `json:"default_locale"`
	BrowserSpecificSettings *browserSettings `json:"browser_specific_settings"`
	Applications            *browserSettings `json:"applications"`
}

type browserSettings struct {
	Gecko *geckoSettings `json:"gecko"`
}

type geckoSettings struct {
	ID string `json:"id"`
}

// Load reads and validates manifest.json from the source directory.
func Load(ctx context.Context, sourceDir string) (*Data, error) {
	path := filepath.Join(sourceDir, Filename)

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &Error{File: path, Err: fmt.Errorf("read: %w", err)}
	}

	var raw manifestFile
	if err := json.Unmarshal(contents, &raw); err != nil {
		return nil, &Error{File: path, Err: fmt.Errorf("parse: %w", err)}
	}

	data := &Data{
		Name:          raw.Name,
		Version:       raw.Version,
		DefaultLocale: raw.DefaultLocale,
		ID:            extensionID(&raw),
	}

	if err := validate(data); err != nil {
		return nil, &Error{File: path, Err: err}
	}

	logger.DebugKV(ctx, "Loaded manifest",
		"name", data.Name,
		"version", data.Version,
		"default_locale", data.DefaultLocale)

	return data, nil
}

// validate checks the fields required for packaging.
func validate(data *Data) error {
	if data.Name == "" {
		return fmt.Errorf("missing required field %q", "name")
	}

	if data.Version == "" {
		return fmt.Errorf("missing required field %q", "version")
	}

	return nil
}

// extensionID extracts the gecko add-on id, preferring the modern
// browser_specific_settings key over the legacy applications key.
func extensionID(raw *manifestFile) string {
	for _, settings := range []*browserSettings{raw.BrowserSpecificSettings, raw.Applications} {
		if settings != nil && settings.Gecko != nil && settings.Gecko.ID != "" {
			return settings.Gecko.ID
		}
	}

	return ""
}
