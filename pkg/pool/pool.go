// Package pool provides byte buffer pooling to reduce allocations on the hot
// paths of the matcher.
//
// Pooled objects:
// - Key buffers (BadgerDB index keys built per neighbourhood lookup)
// - Byte buffers (result row encodings before fingerprinting)
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//
//	buf = append(buf, data...)
package pool

import (
	"sync"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize is the largest capacity, in bytes, a buffer may have and still
	// be returned to a pool
	MaxSize int
}

var globalConfig = PoolConfig{
	Enabled: true,
	MaxSize: 1 << 20,
}

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	if config.MaxSize <= 0 {
		config.MaxSize = 1 << 20
	}
	globalConfig = config

	// Reinitialize pools so disabled periods do not leave stale buffers
	initPools()
}

// initPools reinitializes all pools with their New functions.
func initPools() {
	keyBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, keyBufferCap)
		},
	}
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, byteBufferCap)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Key Buffer Pool (for storage index keys)
// =============================================================================

const keyBufferCap = 128

var keyBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, keyBufferCap)
	},
}

// GetKeyBuffer returns a small buffer sized for index keys.
// Call PutKeyBuffer when done.
func GetKeyBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, keyBufferCap)
	}
	return keyBufferPool.Get().([]byte)[:0]
}

// PutKeyBuffer returns a key buffer to the pool.
func PutKeyBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 16*keyBufferCap {
		return
	}
	keyBufferPool.Put(buf[:0])
}

// =============================================================================
// Byte Buffer Pool
// =============================================================================

const byteBufferCap = 1024

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, byteBufferCap)
	},
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, byteBufferCap)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > globalConfig.MaxSize { // Don't pool huge buffers
		return
	}
	byteBufferPool.Put(buf[:0])
}
