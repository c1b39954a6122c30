package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeManifest stores a manifest.json in a fresh temp dir and returns the dir.
func writeManifest(t *testing.T, contents string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(contents), 0o600))

	return dir
}

// TestLoad verifies the fields the packager reads are extracted correctly.
func TestLoad(t *testing.T) {
	t.Parallel()

	dir := writeManifest(t, `{
		"name": "My Extension",
		"version": "1.2.3",
		"default_locale": "en",
		"browser_specific_settings": {"gecko": {"id": "ext@example.com"}}
	}`)

	data, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "My Extension", data.Name)
	require.Equal(t, "1.2.3", data.Version)
	require.Equal(t, "en", data.DefaultLocale)
	require.Equal(t, "ext@example.com", data.ID)
}

// TestLoadLegacyApplicationsID falls back to the legacy applications key.
func TestLoadLegacyApplicationsID(t *testing.T) {
	t.Parallel()

	dir := writeManifest(t, `{
		"name": "Legacy",
		"version": "0.1",
		"applications": {"gecko": {"id": "legacy@example.com"}}
	}`)

	data, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "legacy@example.com", data.ID)
}

// TestLoadMissingID treats an absent id as empty, not as an error.
func TestLoadMissingID(t *testing.T) {
	t.Parallel()

	dir := writeManifest(t, `{"name": "NoID", "version": "1.0"}`)

	data, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, data.ID)
	require.Empty(t, data.DefaultLocale)
}

// TestLoadFailures covers missing file, malformed JSON and missing required fields.
func TestLoadFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed json":  `{not json`,
		"missing name":    `{"version": "1.0"}`,
		"missing version": `{"name": "x"}`,
	}
	for name, contents := range cases {
		dir := writeManifest(t, contents)

		_, err := Load(context.Background(), dir)
		require.Error(t, err, name)

		var manifestErr *Error
		require.ErrorAs(t, err, &manifestErr, name)
		require.Contains(t, manifestErr.File, Filename, name)
	}

	// Missing file entirely.
	_, err := Load(context.Background(), t.TempDir())
	require.Error(t, err)

	var manifestErr *Error
	require.ErrorAs(t, err, &manifestErr)
}
