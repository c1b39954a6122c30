// Package builder orchestrates extension packaging.
//
// Creator performs one packaging pass: manifest loading, filtered archive
// creation, display-name localization and artifact writing. Orchestrator
// drives Creator for one-shot or watch-mode runs, owns the single-flight
// rebuild guard and holds a lock on the artifacts directory so two packager
// instances cannot race on the same output files.
package builder
