package mediacache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	coreconfig "github.com/AzielCF/az-crm/core/config"
)

// Cleanup defaults, overridable from the dynamic settings store.
const (
	DefaultMaxAgeDays     = 30
	DefaultMaxSizeMB      = 1024
	DefaultCleanupMinutes = 360
)

// CacheStats summarizes on-disk cache usage.
type CacheStats struct {
	TotalSize int64  `json:"total_size"`
	HumanSize string `json:"human_size"`
}

func cacheRoot() string {
	statics := "statics"
	if coreconfig.Global != nil {
		statics = coreconfig.Global.Paths.Statics
	}
	return filepath.Join(statics, "cache")
}

// GlobalStats returns the total size of every tenant's media cache.
func GlobalStats() (CacheStats, error) {
	size, err := dirSize(cacheRoot())
	return CacheStats{TotalSize: size, HumanSize: humanize.Bytes(uint64(size))}, err
}

// TenantStats returns the cache size for a single tenant.
func TenantStats(tenantID string) (CacheStats, error) {
	size, err := dirSize(filepath.Join(cacheRoot(), "tenants", tenantID))
	return CacheStats{TotalSize: size, HumanSize: humanize.Bytes(uint64(size))}, err
}

// ClearTenant removes every cached file for a tenant.
func ClearTenant(tenantID string) error {
	return os.RemoveAll(filepath.Join(cacheRoot(), "tenants", tenantID))
}

// StartCleanup prunes the cache directory in the background until ctx is
// cancelled: first by age, then oldest-first until the size cap holds.
func StartCleanup(ctx context.Context, maxAge time.Duration, maxSizeMB int64, interval time.Duration) {
	if interval < 5*time.Minute {
		interval = 5 * time.Minute
	}

	go func() {
		for {
			logrus.Debug("[MediaCache] Running scheduled cleanup...")
			runCleanup(maxAge, maxSizeMB)

			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()
}

func runCleanup(maxAge time.Duration, maxSizeMB int64) {
	if maxAge > 0 {
		pruneByAge(cacheRoot(), time.Now().Add(-maxAge))
	}
	if maxSizeMB > 0 {
		pruneBySize(cacheRoot(), maxSizeMB*1024*1024)
	}
}

func pruneByAge(root string, cutoff time.Time) {
	filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && info.Name() != ".gitignore" && info.ModTime().Before(cutoff) {
			os.Remove(p)
		}
		return nil
	})
}

type cacheFile struct {
	Path string
	Size int64
	Time time.Time
}

func pruneBySize(root string, limit int64) {
	var files []cacheFile
	var totalSize int64

	filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && info.Name() != ".gitignore" {
			files = append(files, cacheFile{Path: p, Size: info.Size(), Time: info.ModTime()})
			totalSize += info.Size()
		}
		return nil
	})

	if totalSize <= limit {
		return
	}

	// Oldest first
	sort.Slice(files, func(i, j int) bool {
		return files[i].Time.Before(files[j].Time)
	})

	for _, f := range files {
		if totalSize <= limit {
			break
		}
		if err := os.Remove(f.Path); err == nil {
			totalSize -= f.Size
		}
	}
}

func dirSize(path string) (int64, error) {
	var size int64
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, nil
	}
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() != ".gitignore" {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
