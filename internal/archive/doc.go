// Package archive produces an in-memory zip buffer of a directory tree,
// consulting a per-file inclusion predicate.
//
// Entry names are relative to the source directory and use forward slashes.
// Only regular files are archived; excluded directories are pruned without
// descending, which keeps large dependency trees cheap to skip.
package archive
