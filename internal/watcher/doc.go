// Package watcher monitors an extension source tree and invokes a callback
// with debounced, coalesced batches of changed files.
//
// The watcher is handed the same inclusion predicate used for packaging, so
// changes to ignored files never reach the callback and newly written build
// artifacts cannot re-trigger the build that produced them. Directories
// rejected by the predicate are not registered at all, keeping dependency
// trees out of the kernel watch set.
package watcher
