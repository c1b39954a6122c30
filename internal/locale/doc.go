// Package locale resolves __MSG_key__ placeholders in a manifest's display
// name against the extension's default-locale message catalog.
//
// Resolution is all-or-nothing: an unreadable catalog, a malformed JSON
// document or a single missing message key aborts the whole resolution with
// an InputError naming the offending file and key. The catalog is read and
// parsed whenever a default locale is configured, even if the name carries
// no placeholders, so malformed catalogs fail loudly instead of lying
// dormant until a placeholder appears.
package locale
