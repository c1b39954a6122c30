// Package manifest loads and validates the extension manifest.json.
//
// Validation is deliberately shallow: the packager only needs the display
// name, the version, the optional default locale and the optional add-on id.
// Anything else in the manifest is preserved untouched inside the archive.
package manifest
