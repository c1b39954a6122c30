package locale

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/oshokin/webext-packager/internal/logger"
)

// messageTokenRegexp matches __MSG_key__ placeholders; keys are restricted
// to letters, digits, "@" and "_".
var messageTokenRegexp = regexp.MustCompile(`__MSG_([A-Za-z0-9@_]+?)__`)

// InputError reports a broken or incomplete message catalog. It is fatal to
// the current packaging attempt and never retried.
type InputError struct {
	// File is the message catalog path that caused the failure.
	File string
	// Key is the missing message key, empty for read or parse failures.
	Key string
	// Err is the underlying read or parse error, if any.
	Err error
}

// Error renders the failure with the offending file and key.
func (e *InputError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("missing message %q in locale file %s", e.Key, e.File)
	}

	return fmt.Sprintf("locale file %s: %v", e.File, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *InputError) Unwrap() error {
	return e.Err
}

// message is a single entry of the locale catalog.
type message struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// MessagesFile returns the catalog path for a locale under the source directory.
func MessagesFile(sourceDir, localeName string) string {
	return filepath.Join(sourceDir, "_locales", localeName, "messages.json")
}

// ResolveName substitutes every __MSG_key__ placeholder in name using the
// catalog at messageFile. A name without placeholders is returned unchanged,
// but the catalog is still read and parsed.
func ResolveName(ctx context.Context, messageFile, name string) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(messageFile))
	if err != nil {
		return "", &InputError{File: messageFile, Err: fmt.Errorf("read catalog: %w", err)}
	}

	var catalog map[string]message
	if err := json.Unmarshal(contents, &catalog); err != nil {
		return "", &InputError{File: messageFile, Err: fmt.Errorf("parse catalog: %w", err)}
	}

	var missing *InputError

	resolved := messageTokenRegexp.ReplaceAllStringFunc(name, func(token string) string {
		key := messageTokenRegexp.FindStringSubmatch(token)[1]

		entry, ok := catalog[key]
		if !ok || entry.Message == "" {
			if missing == nil {
				missing = &InputError{File: messageFile, Key: key}
			}

			return token
		}

		return entry.Message
	})

	if missing != nil {
		return "", missing
	}

	if resolved != name {
		logger.DebugKV(ctx, "Localized extension name", "name", resolved, "catalog", messageFile)
	}

	return resolved, nil
}
