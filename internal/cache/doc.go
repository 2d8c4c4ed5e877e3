// Package cache stores synthesized audio keyed by text and generation
// parameters. A bounded in-memory LRU (L1) sits in front of an optional
// zstd-compressed disk cache (L2) that survives restarts.
package cache
