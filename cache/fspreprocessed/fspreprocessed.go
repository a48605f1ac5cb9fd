// Package fspreprocessed is the filesystem-backed PreprocessedCache
// implementation. It reuses the tmp-dir-then-rename
// commit protocol from cache/fsraw, generalized to a variable-length
// artifact set, and makes the manifest literally "signed": manifest.json
// carries an HMAC-SHA256 JWT over the entry's identity claims (config
// name, content hash, built_at_iso, file count), so a manifest whose
// signature, identity or file count was altered fails closed at load
// time. The per-file checksums are not among the signed claims.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package fspreprocessed

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"

	"github.com/sgtransit/ingest/cache"
	"github.com/sgtransit/ingest/cmn/cos"
	"github.com/sgtransit/ingest/cmn/xerrors"
	"github.com/sgtransit/ingest/registry"
)

var metaJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	metaFile     = "meta.json"
	manifestFile = "manifest.json"
	artifactsDir = "artifacts"

	metaSchemaVersion = 1
)

// Cache is the filesystem PreprocessedCache.
type Cache struct {
	BaseDir string
	secret  []byte
}

// New is the registry factory: config must carry "base_dir" and
// "hmac_secret" strings.
func New(config map[string]any) (cache.PreprocessedCache, error) {
	baseDir, _ := config["base_dir"].(string)
	if strings.TrimSpace(baseDir) == "" {
		return nil, xerrors.Configurationf("fspreprocessed: config.base_dir is required")
	}
	secret, _ := config["hmac_secret"].(string)
	if strings.TrimSpace(secret) == "" {
		return nil, xerrors.Configurationf("fspreprocessed: config.hmac_secret is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{BaseDir: baseDir, secret: []byte(secret)}, nil
}

// Factory is New typed for direct use with wiring.RegisterPreprocessedCache.
var Factory registry.Factory[cache.PreprocessedCache] = New

type onDiskChecksum struct {
	Algo      string `json:"algo"`
	Hex       string `json:"hex"`
	SizeBytes int64  `json:"size_bytes"`
}

type onDiskManifest struct {
	Files     []string                  `json:"files"`
	Checksums map[string]onDiskChecksum `json:"checksums"`
	Key       cache.CacheKey            `json:"key"`
	Signature string                    `json:"signature"`
}

type manifestClaims struct {
	jwt.RegisteredClaims
	ConfigName  string `json:"config_name"`
	ContentHash string `json:"content_hash"`
	BuiltAtISO  string `json:"built_at_iso"`
	FileCount   int    `json:"file_count"`
}

type onDiskMeta struct {
	Version int                         `json:"version"`
	Meta    cache.PreprocessedCacheMeta `json:"meta"`
}

func safeTS(ts string) string {
	r := strings.NewReplacer(":", "", ".", "")
	return r.Replace(ts)
}

func dirSuffix(configName, contentHash string) string {
	return "-" + configName + "-" + contentHash
}

func (c *Cache) deterministicDir(ts, configName, contentHash string) string {
	return filepath.Join(c.BaseDir, safeTS(ts)+dirSuffix(configName, contentHash))
}

func (c *Cache) resolveDir(key cache.CacheKey) (string, error) {
	if key.FetchedAtISO != "" {
		return c.deterministicDir(key.FetchedAtISO, key.ConfigName, key.ContentHash), nil
	}
	suffix := dirSuffix(key.ConfigName, key.ContentHash)
	entries, err := os.ReadDir(c.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", xerrors.CacheMissf("preprocessed cache base dir does not exist: %s", c.BaseDir)
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
		return "", xerrors.CacheMissf("no preprocessed cache entry for config=%q hash=%q", key.ConfigName, key.ContentHash)
	case 1:
		return filepath.Join(c.BaseDir, matches[0]), nil
	default:
		return "", xerrors.CacheMissf("ambiguous preprocessed cache entry for config=%q hash=%q (%d matches, need fetched_at_iso)", key.ConfigName, key.ContentHash, len(matches))
	}
}

func validateArtifactName(name string) error {
	if name == "" {
		return xerrors.CorruptedCachef("artifact name must not be empty")
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return xerrors.CorruptedCachef("artifact name must not be absolute: %q", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return xerrors.CorruptedCachef("artifact name has an unsafe path segment: %q", name)
		}
	}
	return nil
}

func (c *Cache) Has(key cache.CacheKey) bool {
	dir, err := c.resolveDir(key)
	if err != nil {
		return false
	}
	_, metaErr := os.Stat(filepath.Join(dir, metaFile))
	_, manifestErr := os.Stat(filepath.Join(dir, manifestFile))
	return metaErr == nil && manifestErr == nil
}

func (c *Cache) Save(key cache.CacheKey, artifacts map[string][]byte, meta cache.PreprocessedCacheMeta) error {
	if meta.BuiltAtISO == "" {
		return xerrors.Configurationf("fspreprocessed: meta.built_at_iso is required")
	}
	effectiveTS := key.FetchedAtISO
	if effectiveTS == "" {
		effectiveTS = meta.BuiltAtISO
	} else if effectiveTS != meta.BuiltAtISO {
		return xerrors.Configurationf("fspreprocessed: key.fetched_at_iso %q must equal meta.built_at_iso %q", effectiveTS, meta.BuiltAtISO)
	}

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		if err := validateArtifactName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	finalDir := c.deterministicDir(effectiveTS, key.ConfigName, key.ContentHash)
	if _, err := os.Stat(finalDir); err == nil {
		return xerrors.ConcurrentWritef("preprocessed cache directory already exists: %s", finalDir)
	}

	tmpDir := filepath.Join(c.BaseDir, cos.TmpName(filepath.Base(finalDir)))
	if err := os.MkdirAll(filepath.Join(tmpDir, artifactsDir), 0o755); err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
				glog.Errorf("fspreprocessed: failed to clean up tmp dir %s: %v", tmpDir, rmErr)
			}
		}
	}()

	checksums := make(map[string]onDiskChecksum, len(names))
	artifactsRoot := filepath.Join(tmpDir, artifactsDir)
	for _, name := range names {
		content := artifacts[name]
		dest := filepath.Join(artifactsRoot, filepath.FromSlash(name))
		if !strings.HasPrefix(filepath.Clean(dest), filepath.Clean(artifactsRoot)) {
			return xerrors.CorruptedCachef("artifact name escapes artifacts root: %q", name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := cos.CreateFile(dest)
		if err != nil {
			return err
		}
		if _, err := f.Write(content); err != nil {
			cos.Close(f)
			return err
		}
		if err := cos.FlushClose(f); err != nil {
			return err
		}
		sum := cos.SHA256(content)
		checksums[name] = onDiskChecksum{Algo: sum.Type(), Hex: sum.Value(), SizeBytes: int64(len(content))}
	}

	finalKey := cache.CacheKey{ConfigName: key.ConfigName, ContentHash: key.ContentHash, FetchedAtISO: effectiveTS}
	signature, err := c.sign(finalKey, meta, len(names))
	if err != nil {
		return err
	}
	manifest := onDiskManifest{Files: names, Checksums: checksums, Key: finalKey, Signature: signature}
	if err := writeJSONAtomic(filepath.Join(tmpDir, manifestFile), manifest); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(tmpDir, metaFile), onDiskMeta{Version: metaSchemaVersion, Meta: meta}); err != nil {
		return err
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		if os.IsExist(err) {
			return xerrors.ConcurrentWritef("preprocessed cache directory already exists: %s", finalDir)
		}
		return err
	}
	ok = true
	return nil
}

func (c *Cache) sign(key cache.CacheKey, meta cache.PreprocessedCacheMeta, fileCount int) (string, error) {
	claims := manifestClaims{
		ConfigName:  key.ConfigName,
		ContentHash: key.ContentHash,
		BuiltAtISO:  meta.BuiltAtISO,
		FileCount:   fileCount,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

func (c *Cache) verify(manifest onDiskManifest) error {
	var claims manifestClaims
	_, err := jwt.ParseWithClaims(manifest.Signature, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return xerrors.CorruptedCachef("manifest signature invalid: %v", err)
	}
	if claims.ConfigName != manifest.Key.ConfigName || claims.ContentHash != manifest.Key.ContentHash {
		return xerrors.CorruptedCachef("manifest signature does not match manifest identity")
	}
	if claims.FileCount != len(manifest.Files) {
		return xerrors.CorruptedCachef("manifest signature file count mismatch: signed=%d actual=%d", claims.FileCount, len(manifest.Files))
	}
	return nil
}

func (c *Cache) loadManifestOnDisk(dir string) (onDiskManifest, error) {
	var manifest onDiskManifest
	b, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, xerrors.CacheMissf("preprocessed manifest missing at %s", dir)
		}
		return manifest, xerrors.CorruptedCachef("preprocessed manifest unreadable at %s: %v", dir, err)
	}
	if err := metaJSON.Unmarshal(b, &manifest); err != nil {
		return manifest, xerrors.CorruptedCachef("preprocessed manifest invalid JSON at %s: %v", dir, err)
	}
	if err := c.verify(manifest); err != nil {
		return manifest, err
	}
	return manifest, nil
}

func (c *Cache) LoadManifest(key cache.CacheKey) (cache.ArtifactManifest, error) {
	dir, err := c.resolveDir(key)
	if err != nil {
		return cache.ArtifactManifest{}, err
	}
	manifest, err := c.loadManifestOnDisk(dir)
	if err != nil {
		return cache.ArtifactManifest{}, err
	}
	return cache.ArtifactManifest{Files: manifest.Files}, nil
}

func (c *Cache) LoadArtifact(key cache.CacheKey, name string) ([]byte, error) {
	if err := validateArtifactName(name); err != nil {
		return nil, err
	}
	dir, err := c.resolveDir(key)
	if err != nil {
		return nil, err
	}
	manifest, err := c.loadManifestOnDisk(dir)
	if err != nil {
		return nil, err
	}
	expected, ok := manifest.Checksums[name]
	if !ok {
		return nil, xerrors.CacheMissf("artifact %q not listed in manifest at %s", name, dir)
	}
	content, err := os.ReadFile(filepath.Join(dir, artifactsDir, filepath.FromSlash(name)))
	if err != nil {
		return nil, xerrors.CorruptedCachef("artifact %q unreadable at %s: %v", name, dir, err)
	}
	actual := cos.SHA256(content)
	if !actual.Equal(cos.NewCksum(expected.Algo, expected.Hex)) {
		return nil, xerrors.CorruptedCachef("artifact %q checksum mismatch at %s", name, dir)
	}
	return content, nil
}

func (c *Cache) ReadMeta(key cache.CacheKey) (cache.PreprocessedCacheMeta, error) {
	dir, err := c.resolveDir(key)
	if err != nil {
		return cache.PreprocessedCacheMeta{}, err
	}
	b, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return cache.PreprocessedCacheMeta{}, xerrors.CorruptedCachef("preprocessed meta unreadable at %s: %v", dir, err)
	}
	var onDisk onDiskMeta
	if err := metaJSON.Unmarshal(b, &onDisk); err != nil {
		return cache.PreprocessedCacheMeta{}, xerrors.CorruptedCachef("preprocessed meta invalid JSON at %s: %v", dir, err)
	}
	if onDisk.Meta.BuiltAtISO == "" {
		return cache.PreprocessedCacheMeta{}, xerrors.CorruptedCachef("preprocessed meta missing built_at_iso at %s", dir)
	}
	return onDisk.Meta, nil
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
		manifest, err := c.loadManifestOnDisk(filepath.Join(c.BaseDir, e.Name()))
		if err != nil {
			glog.Warningf("fspreprocessed: skipping %s: %v", e.Name(), err)
			continue
		}
		if configName != "" && manifest.Key.ConfigName != configName {
			continue
		}
		keys = append(keys, manifest.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func writeJSONAtomic(path string, v any) (err error) {
	tmp := path + "." + cos.GenTie()
	f, err := cos.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rmErr := cos.RemoveFile(tmp); rmErr != nil {
				glog.Errorf("fspreprocessed: failed to remove %s after error %v: %v", tmp, err, rmErr)
			}
		}
	}()
	enc := metaJSON.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(v); err != nil {
		cos.Close(f)
		return err
	}
	if err = cos.FlushClose(f); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
