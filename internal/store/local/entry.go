package local

import "time"

// Entry is the index record of a stored blob
type Entry struct {
	// Key is the cache key in hex
	Key string `json:"key"`

	// Size of the blob in bytes
	Size int64 `json:"size"`

	// Created is when the blob was stored
	Created time.Time `json:"created"`

	// Accessed is when the blob was last stored or loaded
	Accessed time.Time `json:"accessed"`
}

// Stats summarises a set of entries
type Stats struct {
	Entries int
	Size    int64
}
