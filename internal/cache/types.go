package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/dgnsrekt/batchtts/tts"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies the cache tier that served a hit.
type Level int

const (
	// LevelNone means the lookup missed every tier.
	LevelNone Level = iota
	// LevelMemory is the in-process LRU.
	LevelMemory
	// LevelDisk is the persistent compressed store.
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "L1-Memory"
	case LevelDisk:
		return "L2-Disk"
	default:
		return "None"
	}
}

// Stats holds cache performance metrics
type Stats struct {
	Capacity   int64 // Maximum capacity in bytes
	MaxEntries int   // Maximum number of entries, 0 for unbounded

	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastEvict time.Time
}

func (s *Stats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Key derives the cache key for text synthesized with params. Parameters are
// formatted exactly so that distinct settings never share an entry. Text is
// compared in NFC form.
func Key(text string, params tts.Parameters) string {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(text)))
	for _, v := range params.Values() {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatFloat(v, 'g', -1, 64)))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
