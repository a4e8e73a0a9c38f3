package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"driver-scheduler/internal/models"
)

// FileDistanceCacheData represents the structure of the cache file
type FileDistanceCacheData struct {
	Entries []models.DistanceCacheEntry `json:"entries"`
}

// FileDistanceCache is a JSON-file implementation of DistanceCacheRepository.
// Every Put rewrites the file before returning.
type FileDistanceCache struct {
	filePath string
	data     *FileDistanceCacheData
	index    map[string]int // segment key -> index in Entries
	mu       sync.RWMutex
}

// NewFileDistanceCache opens the cache at filePath, or at the default location when empty.
// A missing or unreadable file yields an empty cache.
func NewFileDistanceCache(filePath string) (*FileDistanceCache, error) {
	if filePath == "" {
		var err error
		filePath, err = GetDistanceCachePath()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache file path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	log.Printf("[CACHE] Using distance cache file: %s", filePath)

	cache := &FileDistanceCache{
		filePath: filePath,
		data:     &FileDistanceCacheData{Entries: []models.DistanceCacheEntry{}},
		index:    make(map[string]int),
	}
	cache.load()

	return cache, nil
}

func (c *FileDistanceCache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = &FileDistanceCacheData{Entries: []models.DistanceCacheEntry{}}
	defer c.rebuildIndex()

	raw, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("[CACHE] Cache file not found, starting with empty cache: %s", c.filePath)
		return
	}
	if err != nil {
		log.Printf("[ERROR] %v", &CacheIOError{Op: "read", Path: c.filePath, Err: err})
		return
	}

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		entries, err := parseLegacyEntries(raw)
		if err != nil {
			log.Printf("[ERROR] %v", &CacheIOError{Op: "parse", Path: c.filePath, Err: err})
			return
		}
		c.data.Entries = entries
		log.Printf("[CACHE] Imported legacy distance cache: %d entries", len(entries))
		return
	}

	var data FileDistanceCacheData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("[ERROR] %v", &CacheIOError{Op: "parse", Path: c.filePath, Err: err})
		return
	}
	if data.Entries != nil {
		c.data.Entries = data.Entries
	}

	log.Printf("[CACHE] Loaded distance cache: %d entries", len(c.data.Entries))
}

// parseLegacyEntries reads the [[ "a0,a1;b0,b1", {"distance":km,"duration":h} ], ...] layout
func parseLegacyEntries(raw []byte) ([]models.DistanceCacheEntry, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}

	entries := make([]models.DistanceCacheEntry, 0, len(pairs))
	for _, p := range pairs {
		var kv []json.RawMessage
		if err := json.Unmarshal(p, &kv); err != nil || len(kv) != 2 {
			return nil, fmt.Errorf("legacy entry is not a [key, value] pair")
		}

		var key string
		if err := json.Unmarshal(kv[0], &key); err != nil {
			return nil, fmt.Errorf("legacy key: %w", err)
		}
		var value struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		}
		if err := json.Unmarshal(kv[1], &value); err != nil {
			return nil, fmt.Errorf("legacy value: %w", err)
		}

		a, b, err := parseLegacyKey(key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, models.DistanceCacheEntry{
			PointA:        a,
			PointB:        b,
			DistanceKm:    value.Distance,
			DurationHours: value.Duration,
		})
	}
	return entries, nil
}

func parseLegacyKey(key string) (models.Coordinates, models.Coordinates, error) {
	left, right, ok := strings.Cut(key, ";")
	if !ok {
		return models.Coordinates{}, models.Coordinates{}, fmt.Errorf("legacy key %q has no separator", key)
	}
	a, err := parseLegacyPoint(left)
	if err != nil {
		return models.Coordinates{}, models.Coordinates{}, err
	}
	b, err := parseLegacyPoint(right)
	if err != nil {
		return models.Coordinates{}, models.Coordinates{}, err
	}
	return a, b, nil
}

func parseLegacyPoint(s string) (models.Coordinates, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return models.Coordinates{}, fmt.Errorf("legacy point %q is not lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("legacy point %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("legacy point %q: %w", s, err)
	}
	return models.Coordinates{Lat: lat, Lng: lng}, nil
}

func (c *FileDistanceCache) saveUnlocked() error {
	data, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return &CacheIOError{Op: "marshal", Path: c.filePath, Err: err}
	}

	tmpFile := c.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return &CacheIOError{Op: "write", Path: tmpFile, Err: err}
	}

	if err := os.Rename(tmpFile, c.filePath); err != nil {
		return &CacheIOError{Op: "rename", Path: c.filePath, Err: err}
	}

	return nil
}

func (c *FileDistanceCache) Get(ctx context.Context, a, b models.Coordinates) (*models.DistanceCacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if idx, ok := c.index[models.SegmentKey(a, b)]; ok {
		// Return a copy so callers cannot modify cache data without locks
		entryCopy := c.data.Entries[idx]
		return &entryCopy, nil
	}
	return nil, nil
}

// Put stores the entry and synchronously rewrites the cache file.
// On a write failure the entry stays in memory and a *CacheIOError is returned.
func (c *FileDistanceCache) Put(ctx context.Context, entry *models.DistanceCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := models.SegmentKey(entry.PointA, entry.PointB)

	if idx, ok := c.index[key]; ok {
		c.data.Entries[idx] = *entry
		return c.saveUnlocked()
	}

	c.data.Entries = append(c.data.Entries, *entry)
	c.index[key] = len(c.data.Entries) - 1
	return c.saveUnlocked()
}

// Flush persists the full cache to disk
func (c *FileDistanceCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

func (c *FileDistanceCache) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index), nil
}

func (c *FileDistanceCache) Close() error {
	return nil
}

// rebuildIndex creates the index map from the current entries slice.
// Must be called with the mutex already held.
func (c *FileDistanceCache) rebuildIndex() {
	c.index = make(map[string]int, len(c.data.Entries))
	for i := range c.data.Entries {
		c.index[models.SegmentKey(c.data.Entries[i].PointA, c.data.Entries[i].PointB)] = i
	}
}
