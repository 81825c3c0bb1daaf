// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const cacheShardCount = 16

// templateCache is a sharded, concurrent cache of compiled templates
// keyed by GUID and output flavor. A template that fails compilation
// is recorded too (uncompilable=true), so concurrent chunk workers
// referencing the same template don't each re-attempt and re-fail the
// same walk.
type templateCache struct {
	shards [cacheShardCount]templateCacheShard

	// parent, when set, is consulted read-only on a miss before
	// compiling. Worker-local caches chain to the shared cache this
	// way, so entries seeded by the caller (or merged from earlier
	// workers) are honored instead of recompiled.
	parent *templateCache
}

type templateCacheShard struct {
	mu      sync.Mutex
	entries map[string]*cachedTemplate
}

type cachedTemplate struct {
	tmpl         *CompiledTemplate
	uncompilable bool
}

func newTemplateCache() *templateCache {
	c := &templateCache{}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*cachedTemplate)
	}
	return c
}

// newWorkerCache returns a thread-local cache that falls back to shared
// for lookups but never writes to it; the driver merges it in once the
// worker's chunk is done.
func newWorkerCache(shared *templateCache) *templateCache {
	c := newTemplateCache()
	c.parent = shared
	return c
}

// lookup returns the cached entry for key, consulting parent on a miss.
func (c *templateCache) lookup(key string) (*cachedTemplate, bool) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	entry, ok := shard.entries[key]
	shard.mu.Unlock()
	if ok {
		return entry, true
	}
	if c.parent != nil {
		return c.parent.lookup(key)
	}
	return nil, false
}

func cacheKey(def *templateDef, format OutputFormat) string {
	b := def.guid[:]
	suffix := byte('x')
	if format == OutputJSON {
		suffix = 'j'
	}
	return string(append(append([]byte{}, b...), suffix))
}

func (c *templateCache) shardFor(key string) *templateCacheShard {
	h := xxhash.Sum64String(key)
	return &c.shards[h%uint64(cacheShardCount)]
}

// getOrCompile returns the cached compiled form for def under format,
// compiling it on first use. The first caller to successfully install
// an entry for a given key wins; a concurrent duplicate compile from
// another chunk worker is simply discarded once it loses the race.
func (c *templateCache) getOrCompile(def *templateDef, format OutputFormat, names *nameTable, chunk []byte) (*CompiledTemplate, bool) {
	key := cacheKey(def, format)
	shard := c.shardFor(key)

	if entry, ok := c.lookup(key); ok {
		return entry.tmpl, !entry.uncompilable
	}

	diag := &diagState{}
	tmpl, ok := compileTemplate(def, format, names, chunk, diag)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if existing, raced := shard.entries[key]; raced {
		return existing.tmpl, !existing.uncompilable
	}
	shard.entries[key] = &cachedTemplate{tmpl: tmpl, uncompilable: !ok}
	return tmpl, ok
}

// merge installs every entry of other that c doesn't already have.
// Each chunk worker compiles into its own thread-local templateCache;
// the driver merges a finished worker's cache into the shared one,
// first entry wins on a racing duplicate key.
func (c *templateCache) merge(other *templateCache) {
	for i := range other.shards {
		other.shards[i].mu.Lock()
		snapshot := make(map[string]*cachedTemplate, len(other.shards[i].entries))
		for k, v := range other.shards[i].entries {
			snapshot[k] = v
		}
		other.shards[i].mu.Unlock()

		for k, v := range snapshot {
			shard := c.shardFor(k)
			shard.mu.Lock()
			if _, ok := shard.entries[k]; !ok {
				shard.entries[k] = v
			}
			shard.mu.Unlock()
		}
	}
}
