package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/batchtts/tts"
	"github.com/dgnsrekt/batchtts/tts/audio"
)

// Config holds configuration for an AudioCache.
type Config struct {
	MemoryBytes   int64
	MemoryEntries int
	Dir           string // Empty disables the disk tier
	DiskBytes     int64
	TTL           time.Duration
}

// ConfigFrom converts the user-facing cache settings.
func ConfigFrom(c tts.CacheConfig) Config {
	return Config{
		MemoryBytes:   c.MemoryBytes,
		MemoryEntries: c.MemoryEntries,
		Dir:           c.Dir,
		DiskBytes:     c.DiskBytes,
		TTL:           c.TTL,
	}
}

// AudioCache coordinates the memory and disk tiers for synthesized audio.
// Disk hits are promoted into memory. It is safe for concurrent use.
type AudioCache struct {
	memory *MemoryCache
	disk   *DiskCache // nil when no directory is configured
	ttl    time.Duration

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates lookups across tiers.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	MemoryHits int64
	DiskHits   int64
	Promotions int64
	Memory     Stats
	Disk       Stats
}

// New creates an audio cache. Expired disk entries are pruned on open.
func New(cfg Config) (*AudioCache, error) {
	ac := &AudioCache{
		memory: NewMemoryCache(cfg.MemoryBytes, cfg.MemoryEntries),
		ttl:    cfg.TTL,
	}

	if cfg.Dir != "" {
		disk, err := NewDiskCache(cfg.Dir, cfg.DiskBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		ac.disk = disk
	}

	if removed := ac.Cleanup(); removed > 0 {
		log.Debug("Audio cache: pruned expired entries", "removed", removed)
	}
	return ac, nil
}

// Get looks up audio for text synthesized with params.
func (ac *AudioCache) Get(text string, params tts.Parameters) (*audio.Audio, Level, bool) {
	key := Key(text, params)

	if data, ok := ac.memory.Get(key); ok {
		if a, err := audio.Decode(data); err == nil {
			ac.record(LevelMemory)
			return a, LevelMemory, true
		}
		ac.memory.Delete(key)
	}

	if ac.disk != nil {
		if data, ok := ac.disk.Get(key); ok {
			a, err := audio.Decode(data)
			if err == nil {
				ac.record(LevelDisk)
				// Promotion is best-effort
				_ = ac.memory.Put(key, data)
				return a, LevelDisk, true
			}
			log.Warn("Audio cache: dropping corrupted entry", "key", key, "error", err)
			ac.disk.Delete(key)
		}
	}

	ac.record(LevelNone)
	return nil, LevelNone, false
}

// Put stores audio in every tier. Items too large for a tier are skipped.
func (ac *AudioCache) Put(text string, params tts.Parameters, a *audio.Audio) error {
	if a == nil {
		return nil
	}
	key := Key(text, params)
	data := a.Encode()

	if err := ac.memory.Put(key, data); err != nil && err != ErrItemTooLarge {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if ac.disk != nil {
		if err := ac.disk.Put(key, data); err != nil && err != ErrItemTooLarge {
			return fmt.Errorf("L2 cache error: %w", err)
		}
	}
	return nil
}

func (ac *AudioCache) record(level Level) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	switch level {
	case LevelMemory:
		ac.stats.Hits++
		ac.stats.MemoryHits++
	case LevelDisk:
		ac.stats.Hits++
		ac.stats.DiskHits++
		ac.stats.Promotions++
	default:
		ac.stats.Misses++
	}
}

// Cleanup removes entries older than the configured TTL from both tiers.
func (ac *AudioCache) Cleanup() int {
	if ac.ttl <= 0 {
		return 0
	}
	removed := ac.memory.Prune(ac.ttl)
	if ac.disk != nil {
		removed += ac.disk.RemoveOlderThan(time.Now().Add(-ac.ttl))
	}
	return removed
}

// Stats returns aggregated statistics from all cache levels.
func (ac *AudioCache) Stats() ManagerStats {
	ac.mu.Lock()
	stats := ac.stats
	ac.mu.Unlock()

	stats.Memory = ac.memory.Stats()
	if ac.disk != nil {
		stats.Disk = ac.disk.Stats()
	}
	return stats
}

// Close persists the disk index.
func (ac *AudioCache) Close() error {
	if ac.disk == nil {
		return nil
	}
	if err := ac.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}
