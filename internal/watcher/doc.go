// Package watcher keeps a knowledge base in step with a directory of text
// files.
//
// A Watcher reports debounced fsnotify events for files whose extension is
// watched. A Syncer turns those events into ingests and deletes against a
// knowledge base, using a stable id per relative path so that a file is
// always the same document.
package watcher
