// Package cache provides the content-addressed audio cache: a flat directory of
// <key>.mp3 files where a file's presence is the hit signal. Entries are written
// through a temporary file and renamed into place, so a reader never sees a
// partially written entry.
package cache
