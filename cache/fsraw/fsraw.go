// Package fsraw is the filesystem-backed RawCache implementation
// grounded on the write-temp-then-rename
// pattern in cmn/jsp/file.go, generalized from a single meta file to
// the cache's two-file (meta.json + payload.bin) directory commit.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package fsraw

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/cos"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/registry"
)

var metaJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	metaFile    = "meta.json"
	payloadFile = "payload.bin"
)

// Cache is the filesystem RawCache. BaseDir is the configured root
// directory; every run gets its own subdirectory.
type Cache struct {
	BaseDir string
}

// New is the registry factory: config must carry a "base_dir" string.
func New(config map[string]any) (cache.RawCache, error) {
	baseDir, _ := config["base_dir"].(string)
	if strings.TrimSpace(baseDir) == "" {
		return nil, xerrors.Configurationf("fsraw: config.base_dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{BaseDir: baseDir}, nil
}

// Factory is New typed for direct use with wiring.RegisterRawCache.
var Factory registry.Factory[cache.RawCache] = New

type onDiskChecksum struct {
	Algo      string `json:"algo"`
	Hex       string `json:"hex"`
	SizeBytes int64  `json:"size_bytes"`
}

type onDiskMeta struct {
	Version     int               `json:"version"`
	Checksum    onDiskChecksum    `json:"checksum"`
	SizeBytes   int64             `json:"size_bytes"`
	PayloadFile string            `json:"payload_file"`
	Raw         cache.RawCacheMeta `json:"raw"`
	Key         cache.CacheKey    `json:"key"`
}

const metaSchemaVersion = 1

// safeTS strips filesystem-hostile characters from an ISO timestamp.
func safeTS(ts string) string {
	r := strings.NewReplacer(":", "", ".", "")
	return r.Replace(ts)
}

func dirSuffix(configName, contentHash string) string {
	return "-" + configName + "-" + contentHash
}

func (c *Cache) deterministicDir(key cache.CacheKey) string {
	name := safeTS(key.FetchedAtISO) + dirSuffix(key.ConfigName, key.ContentHash)
	return filepath.Join(c.BaseDir, name)
}

// resolveDir finds the on-disk directory for key. If FetchedAtISO is
// set the name is deterministic; otherwise this scans for exactly one
// directory ending in the config_name/content_hash suffix.
func (c *Cache) resolveDir(key cache.CacheKey) (string, error) {
	if key.FetchedAtISO != "" {
		return c.deterministicDir(key), nil
	}
	suffix := dirSuffix(key.ConfigName, key.ContentHash)
	entries, err := os.ReadDir(c.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", xerrors.CacheMissf("raw cache base dir does not exist: %s", c.BaseDir)
		}
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			matches = append(matches, e.Name())
		}
	}
	switch len(matches) {
	case 0:
		return "", xerrors.CacheMissf("no raw cache entry for config=%q hash=%q", key.ConfigName, key.ContentHash)
	case 1:
		return filepath.Join(c.BaseDir, matches[0]), nil
	default:
		return "", xerrors.CacheMissf("ambiguous raw cache entry for config=%q hash=%q (%d matches, need fetched_at_iso)", key.ConfigName, key.ContentHash, len(matches))
	}
}

func (c *Cache) Has(key cache.CacheKey) bool {
	dir, err := c.resolveDir(key)
	if err != nil {
		return false
	}
	_, metaErr := os.Stat(filepath.Join(dir, metaFile))
	_, payloadErr := os.Stat(filepath.Join(dir, payloadFile))
	return metaErr == nil && payloadErr == nil
}

func (c *Cache) Save(key cache.CacheKey, record cache.RawCacheRecord) error {
	if key.FetchedAtISO == "" {
		return xerrors.Configurationf("fsraw: save requires a key with fetched_at_iso set")
	}
	finalDir := c.deterministicDir(key)
	if _, err := os.Stat(finalDir); err == nil {
		return xerrors.ConcurrentWritef("raw cache directory already exists: %s", finalDir)
	}

	tmpDir := filepath.Join(c.BaseDir, cos.TmpName(filepath.Base(finalDir)))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
				glog.Errorf("fsraw: failed to clean up tmp dir %s: %v", tmpDir, rmErr)
			}
		}
	}()

	sum := cos.SHA256(record.Payload)
	payloadPath := filepath.Join(tmpDir, payloadFile)
	f, err := cos.CreateFile(payloadPath)
	if err != nil {
		return err
	}
	if _, err := f.Write(record.Payload); err != nil {
		cos.Close(f)
		return err
	}
	if err := cos.FlushClose(f); err != nil {
		return err
	}

	meta := onDiskMeta{
		Version: metaSchemaVersion,
		Checksum: onDiskChecksum{
			Algo:      sum.Type(),
			Hex:       sum.Value(),
			SizeBytes: int64(len(record.Payload)),
		},
		SizeBytes:   int64(len(record.Payload)),
		PayloadFile: payloadFile,
		Raw:         record.Meta,
		Key:         key,
	}
	if err := writeMetaJSON(filepath.Join(tmpDir, metaFile), meta); err != nil {
		return err
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		if os.IsExist(err) {
			return xerrors.ConcurrentWritef("raw cache directory already exists: %s", finalDir)
		}
		return err
	}
	ok = true
	return nil
}

func (c *Cache) Load(key cache.CacheKey) (cache.RawCacheRecord, error) {
	dir, err := c.resolveDir(key)
	if err != nil {
		return cache.RawCacheRecord{}, err
	}
	meta, err := readMetaJSON(filepath.Join(dir, metaFile))
	if err != nil {
		return cache.RawCacheRecord{}, xerrors.CorruptedCachef("raw cache meta unreadable at %s: %v", dir, err)
	}
	if meta.Key.FetchedAtISO != meta.Raw.FetchedAtISO {
		return cache.RawCacheRecord{}, xerrors.CorruptedCachef("raw cache meta inconsistent: key.fetched_at_iso != raw.fetched_at_iso at %s", dir)
	}
	payload, err := os.ReadFile(filepath.Join(dir, payloadFile))
	if err != nil {
		return cache.RawCacheRecord{}, xerrors.CorruptedCachef("raw cache payload unreadable at %s: %v", dir, err)
	}
	actual := cos.SHA256(payload)
	expected := cos.NewCksum(meta.Checksum.Algo, meta.Checksum.Hex)
	if !actual.Equal(expected) {
		return cache.RawCacheRecord{}, xerrors.CorruptedCachef("raw cache checksum mismatch at %s: %s", dir, (&cos.ErrBadCksum{Expected: expected, Actual: actual}).Error())
	}
	return cache.RawCacheRecord{Payload: payload, Meta: meta.Raw}, nil
}

func (c *Cache) IterKeys(configName string) ([]cache.CacheKey, error) {
	entries, err := os.ReadDir(c.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []cache.CacheKey
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := readMetaJSON(filepath.Join(c.BaseDir, e.Name(), metaFile))
		if err != nil {
			glog.Warningf("fsraw: skipping %s, unreadable meta: %v", e.Name(), err)
			continue
		}
		if configName != "" && meta.Key.ConfigName != configName {
			continue
		}
		keys = append(keys, meta.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func writeMetaJSON(path string, meta onDiskMeta) (err error) {
	tmp := path + "." + cos.GenTie()
	f, err := cos.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rmErr := cos.RemoveFile(tmp); rmErr != nil {
				glog.Errorf("fsraw: failed to remove %s after error %v: %v", tmp, err, rmErr)
			}
		}
	}()
	enc := metaJSON.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(meta); err != nil {
		cos.Close(f)
		return err
	}
	if err = cos.FlushClose(f); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetaJSON(path string) (onDiskMeta, error) {
	var meta onDiskMeta
	b, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := metaJSON.Unmarshal(b, &meta); err != nil {
		return meta, err
	}
	return meta, nil
}
