package snapshot

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Cache is a file-based cache of rendered plan snapshots. Entries are keyed
// by plan id plus the plan's mutation version, so any edit to the plan, its
// cells or its plants naturally misses the cache and the stale file gets
// swept on the next Set.
type Cache struct {
	dir string
}

// NewCache creates a snapshot cache in the given directory.
func NewCache(dir string) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		// Cache is optional; rendering still works without it.
		log.Printf("snapshot: could not create cache directory: %v", err)
	}
	return &Cache{dir: dir}
}

func (c *Cache) path(planID string, version int64) string {
	return filepath.Join(c.dir, fmt.Sprintf("plan_%s_v%d.png", planID, version))
}

// Get returns the cached snapshot for this exact plan version.
func (c *Cache) Get(planID string, version int64) ([]byte, bool) {
	data, err := os.ReadFile(c.path(planID, version))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores a rendered snapshot and drops older versions of the same plan.
func (c *Cache) Set(planID string, version int64, data []byte) error {
	c.removePlanFiles(planID)
	return os.WriteFile(c.path(planID, version), data, 0644)
}

// Invalidate removes every cached snapshot for a plan.
func (c *Cache) Invalidate(planID string) {
	c.removePlanFiles(planID)
}

func (c *Cache) removePlanFiles(planID string) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	prefix := "plan_" + planID + "_v"
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) && filepath.Ext(entry.Name()) == ".png" {
			os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
}
