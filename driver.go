// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"runtime"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// defaultMaxParallelism bounds chunk-worker concurrency when Options
// doesn't set MaxParallelism.
var defaultMaxParallelism = runtime.NumCPU()

// chunkResult is one chunk's contribution to the overall record stream,
// kept indexed by chunk number so results can be reassembled in order
// regardless of which worker finished first.
type chunkResult struct {
	events   []RenderedEvent
	rejected bool
	omitted  int
}

// runDriver enumerates chunk slots, classifies each healthy/unhealthy,
// dispatches healthy chunks to a worker pool with thread-local compiled-
// template caches, recovers unhealthy ones by headerless scan, and
// returns every RenderedEvent in (chunk index, record index) order
// together with summary Stats.
func (f *FileImage) runDriver() ([]RenderedEvent, Stats, error) {
	numChunks := 0
	if f.size > fileHeaderBlockSize {
		remaining := f.size - fileHeaderBlockSize
		numChunks = int((remaining + chunkSize - 1) / chunkSize)
	}

	chunks := make([]Chunk, numChunks)
	for i := 0; i < numChunks; i++ {
		start := fileHeaderBlockSize + uint32(i)*chunkSize
		end := start + chunkSize

		var data []byte
		if end <= f.size {
			data = f.data[start:end]
		} else {
			// Truncated final slot: zero-pad to a full 64 KB span
			// rather than drop it.
			data = make([]byte, chunkSize)
			copy(data, f.data[start:f.size])
		}
		chunks[i] = classifyChunk(i, data, f.opts.ValidateChecksums)
	}

	shared := newSharedTemplateCache(f.opts.TemplateCacheSeed)

	results := make([]chunkResult, numChunks)

	var eg errgroup.Group
	sem := make(chan struct{}, f.opts.MaxParallelism)
	for i := range chunks {
		if chunks[i].Rejected {
			continue
		}
		idx := i
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			local := newWorkerCache(shared)
			results[idx] = f.parseHealthyChunk(&chunks[idx], local)
			shared.merge(local)
			return nil
		})
	}
	_ = eg.Wait() // workers never return a non-nil error; chunk failures degrade, they don't abort

	for i := range chunks {
		if !chunks[i].Rejected {
			continue
		}
		results[i] = f.parseHeaderlessChunk(&chunks[i], shared)
	}

	return f.collect(chunks, results)
}

// parseHealthyChunk renders every record of a structurally valid chunk
// using its own name/template tables and cache (local, merged into the
// shared cache by the caller once this chunk is done).
func (f *FileImage) parseHealthyChunk(c *Chunk, cache *templateCache) chunkResult {
	names := newNameTable(c.data)
	templates, err := newTemplateTable(c.data)
	if err != nil {
		f.logger.Warnf("chunk %d: template table walk stopped early: %v", c.Index, err)
	}

	recs, omitted := c.records()
	events := make([]RenderedEvent, 0, len(recs))
	for i, rec := range recs {
		events = append(events, f.renderRecord(c.Index, i, rec, c.data, names, templates, cache))
	}
	return chunkResult{events: events, omitted: omitted}
}

// parseHeaderlessChunk recovers records from a chunk whose header
// failed validation by scanning the whole 64 KB region for the record
// magic. The chunk's own tables aren't trusted: names decode lazily
// straight from the chunk bytes, the template table starts empty (a
// back-reference is resolved by decoding the definition header directly
// at the referenced offset, and one that does not decode degrades), and any
// template this chunk does compile lands in a throwaway cache chained
// read-only to the shared one. Every record recovered this way carries
// DiagHeaderlessRecovery so a consumer can tell it from a normal parse.
func (f *FileImage) parseHeaderlessChunk(c *Chunk, shared *templateCache) chunkResult {
	names := newLazyNameTable(c.data)
	templates := &templateTable{byOffset: make(map[uint32]*templateDef)}
	cache := newWorkerCache(shared)

	var events []RenderedEvent
	offset := uint32(0)
	recordIndex := 0
	for offset+recordHeaderSize <= uint32(len(c.data)) {
		rec, size, err := parseRecordAt(c.data, offset, uint32(len(c.data)))
		if err != nil {
			offset += 4
			continue
		}
		ev := f.renderRecord(c.Index, recordIndex, rec, c.data, names, templates, cache)
		ev.Diagnostic = joinDiag(ev.Diagnostic, DiagHeaderlessRecovery)
		events = append(events, ev)
		recordIndex++
		offset += size
	}
	return chunkResult{events: events, rejected: true}
}

func joinDiag(existing, extra string) string {
	if existing == "" {
		return extra
	}
	return existing + "; " + extra
}

// renderRecord walks one record's BinXml body to a RenderedEvent, using
// the XML- or JSON-flavored direct sink depending on Options.OutputFormat.
// chunk is the full chunk span rec.body was sliced from: tokenChunkOffset
// needs the chunk's own base address to turn a fragment-relative position
// back into a chunk-relative offset via cap(chunk)-cap(data) arithmetic.
func (f *FileImage) renderRecord(chunkIndex, recordIndex int, rec record, chunk []byte, names *nameTable, templates *templateTable, cache *templateCache) RenderedEvent {
	diag := &diagState{}
	w := &binxmlWalker{
		chunk:     chunk,
		names:     names,
		templates: templates,
		cache:     cache,
		format:    f.opts.OutputFormat,
		diag:      diag,
	}

	sink := newDirectSink(f.opts.OutputFormat, nil, w)
	if err := w.walkFragment(rec.body, 0, sink); err != nil {
		diag.add(DiagTruncatedBody)
	}

	return RenderedEvent{
		RecordID:           rec.header.RecordID,
		WrittenTime:        filetimeToTime(rec.header.WrittenTime),
		Text:               sink.result(),
		Bytes:              rec.body,
		ChunkIndex:         chunkIndex,
		RecordIndexInChunk: recordIndex,
		Diagnostic:         diag.String(),
	}
}

// collect assembles every chunk's events into one (chunk index, record
// index) ordered slice and tallies Stats.
func (f *FileImage) collect(chunks []Chunk, results []chunkResult) ([]RenderedEvent, Stats, error) {
	var stats Stats
	var all []RenderedEvent

	for i := range chunks {
		r := results[i]
		if r.rejected {
			stats.UnhealthyChunks++
			if len(r.events) > 0 {
				stats.RecoveredChunks++
			}
		} else {
			stats.HealthyChunks++
		}
		stats.RecordsRendered += len(r.events)
		stats.RecordsOmitted += r.omitted
		all = append(all, r.events...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ChunkIndex != all[j].ChunkIndex {
			return all[i].ChunkIndex < all[j].ChunkIndex
		}
		return all[i].RecordIndexInChunk < all[j].RecordIndexInChunk
	})

	return all, stats, nil
}

// newSharedTemplateCache builds the cache every chunk worker's local
// cache merges into, pre-populated from Options.TemplateCacheSeed so a
// caller can warm it across successive rotations of the same channel
// that share templates.
func newSharedTemplateCache(seed map[string]CompiledTemplate) *templateCache {
	c := newTemplateCache()
	for guidStr, tmpl := range seed {
		g, err := uuid.Parse(guidStr)
		if err != nil {
			continue
		}
		tmplCopy := tmpl
		tmplCopy.GUID = g
		def := &templateDef{guid: g}
		key := cacheKey(def, tmpl.Format)
		shard := c.shardFor(key)
		shard.mu.Lock()
		shard.entries[key] = &cachedTemplate{tmpl: &tmplCopy}
		shard.mu.Unlock()
	}
	return c
}
