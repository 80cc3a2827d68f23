package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Well-known index_meta keys.
const (
	// MetaFingerprint holds the hash of the inputs of the last index build.
	MetaFingerprint = "fingerprint"
	// MetaBuiltAt holds the RFC3339 time of the last index build.
	MetaBuiltAt = "built_at"
	// MetaEmbedModel holds the embedding model used for the stored vectors.
	MetaEmbedModel = "embed_model"
)
