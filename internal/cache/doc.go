// Package cache provides a small generic LRU cache with a soft limit.
//
// It backs the shader translation cache: compiled SPIR-V keyed by source
// hash, so reloading an unchanged source skips the compiler.
//
//	c := cache.New[string, []uint32](64)
//	c.Set(key, words)
//	words, ok := c.Get(key)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
