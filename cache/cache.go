// Package cache defines the behavior contracts shared by the raw cache
// and preprocessed cache implementations, plus the cache-key
// derivation. It deliberately carries no directory-layout or locking
// detail - that belongs to the concrete implementations under
// cache/fsraw and cache/fspreprocessed.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cache

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/sgtransit/ingest/cmn/cos"
)

var canonicalJSON = jsoniter.Config{SortMapKeys: true}.Froze()

// CacheKey identifies one pipeline run. Equality covers all three
// fields; when FetchedAtISO is empty, implementations resolve the key
// by matching the directory suffix and must treat more than one match
// as ambiguous (CacheMiss).
type CacheKey struct {
	ConfigName   string `json:"config_name"`
	ContentHash  string `json:"content_hash"`
	FetchedAtISO string `json:"fetched_at_iso,omitempty"`
}

func (k CacheKey) String() string {
	if k.FetchedAtISO == "" {
		return fmt.Sprintf("%s-%s", k.ConfigName, k.ContentHash)
	}
	return fmt.Sprintf("%s-%s-%s", k.FetchedAtISO, k.ConfigName, k.ContentHash)
}

// RawCacheMeta is the provenance carried alongside a raw payload.
type RawCacheMeta struct {
	SourceName   string            `json:"source_name"`
	FetchedAtISO string            `json:"fetched_at_iso"`
	ContentType  string            `json:"content_type"`
	Encoding     string            `json:"encoding"`
	CachePath    string            `json:"cache_path"`
	Meta         map[string]string `json:"meta"`
}

// BinaryEncoding is the encoding sentinel for non-text payloads.
const BinaryEncoding = "binary"

// RawCacheRecord is a raw payload plus its provenance.
type RawCacheRecord struct {
	Payload []byte
	Meta    RawCacheMeta
}

// PreprocessedCacheMeta is the provenance attached to a preprocessed
// artifact set. Extra must be JSON-marshalable.
type PreprocessedCacheMeta struct {
	BuiltAtISO    string `json:"built_at_iso"`
	SchemaVersion int    `json:"schema_version"`
	Extra         any    `json:"extra"`
}

// ArtifactManifest enumerates a preprocessed artifact set.
type ArtifactManifest struct {
	Files []string `json:"files"`
}

// RawCache persists (payload, provenance) pairs, one per CacheKey, with
// SHA-256 integrity and near-atomic commit. Implementations choose the
// storage backend (filesystem, S3, ...); this interface fixes only the
// behavior.
type RawCache interface {
	Has(key CacheKey) bool
	Save(key CacheKey, record RawCacheRecord) error
	Load(key CacheKey) (RawCacheRecord, error)
	IterKeys(configName string) ([]CacheKey, error)
}

// PreprocessedCache persists a named artifact set plus a manifest and
// typed meta, one per CacheKey.
type PreprocessedCache interface {
	Has(key CacheKey) bool
	Save(key CacheKey, artifacts map[string][]byte, meta PreprocessedCacheMeta) error
	LoadManifest(key CacheKey) (ArtifactManifest, error)
	LoadArtifact(key CacheKey, name string) ([]byte, error)
	ReadMeta(key CacheKey) (PreprocessedCacheMeta, error)
	IterKeys(configName string) ([]CacheKey, error)
}

// MakeCacheKey derives a CacheKey per the C5 algorithm: seed with
// config_name, feed the SHA-256 of the payload, feed canonical JSON of
// the flat provenance bag, feed canonical JSON of extraIdentity if
// given. fetchedAtISO is carried through verbatim and is never fed into
// the hash - that is what makes the key replay-stable across re-fetches
// of byte-identical data.
func MakeCacheKey(configName string, record RawCacheRecord, extraIdentity any) (CacheKey, error) {
	h := cos.NewCksumHash()
	if _, err := h.Writer().Write([]byte(configName)); err != nil {
		return CacheKey{}, err
	}
	payloadSum := cos.SHA256(record.Payload)
	if _, err := h.Writer().Write([]byte(payloadSum.Value())); err != nil {
		return CacheKey{}, err
	}
	if len(record.Meta.Meta) > 0 {
		b, err := canonicalJSON.Marshal(record.Meta.Meta)
		if err != nil {
			return CacheKey{}, err
		}
		if _, err := h.Writer().Write(b); err != nil {
			return CacheKey{}, err
		}
	}
	if extraIdentity != nil {
		b, err := canonicalJSON.Marshal(extraIdentity)
		if err != nil {
			return CacheKey{}, err
		}
		if _, err := h.Writer().Write(b); err != nil {
			return CacheKey{}, err
		}
	}
	return CacheKey{
		ConfigName:   configName,
		ContentHash:  h.Finalize().Value(),
		FetchedAtISO: record.Meta.FetchedAtISO,
	}, nil
}
