package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const indexFile = "cache.index"

// DiskCache is the L2 cache. Values are zstd-compressed into one file per
// key, and a gob-encoded index tracks sizes and access times across runs.
type DiskCache struct {
	basePath string
	capacity int64 // Maximum size on disk in bytes
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu    sync.Mutex
	stats Stats
}

// diskEntry is persisted in the index, so its fields are exported for gob.
type diskEntry struct {
	File       string // File name relative to basePath
	Size       int64  // Compressed size on disk
	RawSize    int64
	Stored     time.Time
	LastAccess time.Time
}

// NewDiskCache opens or creates a disk cache rooted at basePath.
func NewDiskCache(basePath string, capacity int64) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		encoder:  enc,
		decoder:  dec,
		index:    make(map[string]*diskEntry),
	}

	// A missing or unreadable index starts the cache empty.
	if err := dc.loadIndex(); err != nil {
		dc.index = make(map[string]*diskEntry)
	}
	for _, e := range dc.index {
		dc.size += e.Size
	}

	return dc, nil
}

// Get reads, decompresses and returns a value.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(dc.basePath, entry.File))
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		// File missing or corrupted, drop it from the index
		dc.remove(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put compresses and writes a value, evicting least recently used entries
// when over capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	compressed := dc.encoder.EncodeAll(value, nil)
	diskSize := int64(len(compressed))
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.remove(key, existing)
	}

	if over := dc.size + diskSize - dc.capacity; over > 0 {
		dc.evict(over)
	}

	name := key + ".zst"
	if err := writeFileAtomic(filepath.Join(dc.basePath, name), compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &diskEntry{
		File:       name,
		Size:       diskSize,
		RawSize:    int64(len(value)),
		Stored:     now,
		LastAccess: now,
	}
	dc.size += diskSize
	return nil
}

// Delete removes an entry from the disk cache.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.remove(key, entry)
	}
}

// RemoveOlderThan removes entries stored before cutoff.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if entry.Stored.Before(cutoff) {
			dc.remove(key, entry)
			removed++
		}
	}
	return removed
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Capacity = dc.capacity
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	stats.updateHitRate()
	return stats
}

// Close persists the index and releases the codec.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	err := dc.saveIndex()
	dc.encoder.Close()
	dc.decoder.Close()
	return err
}

// evict frees at least need bytes, oldest access first. Lock must be held.
func (dc *DiskCache) evict(need int64) {
	keys := make([]string, 0, len(dc.index))
	for k := range dc.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return dc.index[keys[i]].LastAccess.Before(dc.index[keys[j]].LastAccess)
	})

	var freed int64
	for _, k := range keys {
		if freed >= need {
			break
		}
		entry := dc.index[k]
		freed += entry.Size
		dc.remove(k, entry)
		dc.stats.Evictions++
		dc.stats.LastEvict = time.Now()
	}
}

// remove deletes the file and index entry. Lock must be held.
func (dc *DiskCache) remove(key string, entry *diskEntry) {
	_ = os.Remove(filepath.Join(dc.basePath, entry.File))
	delete(dc.index, key)
	dc.size -= entry.Size
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := gob.NewDecoder(f).Decode(&dc.index); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}
	return nil
}

func (dc *DiskCache) saveIndex() error {
	f, err := os.CreateTemp(dc.basePath, indexFile+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if err := gob.NewEncoder(f).Encode(dc.index); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(dc.basePath, indexFile))
}

// writeFileAtomic writes to a temp file first, then renames over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
