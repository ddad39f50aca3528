// Package storage manages the upload directory that holds both transient
// originals and the retained converted artifacts served under /uploads/.
// File names are derived from a monotonic millisecond stamp so that
// concurrent requests never share a path.
package storage
