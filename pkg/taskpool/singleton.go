package taskpool

import (
	"context"
	"sync"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/sirupsen/logrus"
)

var (
	globalPool     *Pool
	globalPoolOnce sync.Once
	globalPoolCtx  context.Context
	globalCancel   context.CancelFunc
)

// GetGlobalPool returns the singleton task pool
func GetGlobalPool() *Pool {
	globalPoolOnce.Do(func() {
		globalPoolCtx, globalCancel = context.WithCancel(context.Background())

		size, queue := 6, 250
		if coreconfig.Global != nil {
			if coreconfig.Global.WorkerPool.Size > 0 {
				size = coreconfig.Global.WorkerPool.Size
			}
			if coreconfig.Global.WorkerPool.QueueSize > 0 {
				queue = coreconfig.Global.WorkerPool.QueueSize
			}
		}

		globalPool = NewPool(size, queue)
		globalPool.Start(globalPoolCtx)
		logrus.Infof("[TaskPool] Global instance started with %d workers and queue size %d", size, queue)
	})
	return globalPool
}

// StopGlobalPool stops the singleton pool
func StopGlobalPool() {
	if globalCancel != nil {
		globalCancel()
	}
	if globalPool != nil {
		globalPool.Stop()
	}
}

// GetGlobalStats returns stats from the global pool
func GetGlobalStats() PoolStats {
	return GetGlobalPool().GetStats()
}
