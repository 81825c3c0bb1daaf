// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"os"
	"time"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/evtxgo/evtx/log"
)

// OutputFormat selects the rendered-text flavor a RenderedEvent
// carries.
type OutputFormat int

const (
	// OutputXML renders each event as minimal XML text.
	OutputXML OutputFormat = iota
	// OutputJSON renders each event as minimal JSON text.
	OutputJSON
)

// Options configures a Parse call.
type Options struct {
	// MaxParallelism bounds the number of chunks processed concurrently;
	// zero or a negative value means runtime.NumCPU().
	MaxParallelism int

	// OutputFormat selects XML or JSON rendering, by default OutputXML.
	OutputFormat OutputFormat

	// ValidateChecksums enables CRC32 verification of file, chunk, and
	// record-region checksums, by default false.
	ValidateChecksums bool

	// TemplateCacheSeed pre-populates the compiled-template cache keyed
	// by template GUID string, letting a caller warm the cache across
	// files that share templates (e.g. successive rotations of the same
	// channel).
	TemplateCacheSeed map[string]CompiledTemplate

	// A custom logger.
	Logger log.Logger
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.MaxParallelism <= 0 {
		o.MaxParallelism = defaultMaxParallelism
	}
	return o
}

// RenderedEvent is one decoded record, ready for a consumer.
// ChunkIndex and RecordIndexInChunk identify the record's position so
// output ordering is verifiable without re-deriving it.
type RenderedEvent struct {
	RecordID    uint64
	WrittenTime time.Time
	Text        string

	// Bytes is the record's raw BinXml body, for a caller that wants to
	// re-render or hash the untouched wire bytes alongside Text.
	Bytes []byte

	Diagnostic         string
	ChunkIndex         int
	RecordIndexInChunk int
}

// Stats summarizes one Parse call.
type Stats struct {
	HealthyChunks    int
	UnhealthyChunks  int
	RecoveredChunks  int
	RecordsRendered  int
	RecordsOmitted   int
}

// FileImage is an open .evtx file: an immutable byte buffer plus the
// parsed file header and the state a Parse call accumulates.
type FileImage struct {
	data   []byte
	size   uint32
	header FileHeader

	mapped mmap.MMap
	f      *os.File

	opts   *Options
	logger *log.Helper
}

// Open memory-maps the file at path and wraps it in a FileImage; Close
// releases the mapping.
func Open(path string, opts *Options) (*FileImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	img := newFileImage([]byte(data), opts)
	img.mapped = data
	img.f = f
	return img, nil
}

// NewBytes instantiates a FileImage over an already-materialized byte
// buffer.
func NewBytes(data []byte, opts *Options) (*FileImage, error) {
	return newFileImage(data, opts), nil
}

func newFileImage(data []byte, opts *Options) *FileImage {
	img := &FileImage{
		data: data,
		size: uint32(len(data)),
		opts: opts.withDefaults(),
	}

	var logger log.Logger
	if img.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		img.logger = log.NewHelper(log.NewFilter(logger,
			log.FilterLevel(log.LevelError)))
	} else {
		img.logger = log.NewHelper(img.opts.Logger)
	}

	return img
}

// Close releases the mapped file, if any.
func (f *FileImage) Close() error {
	if f.mapped != nil {
		_ = f.mapped.Unmap()
	}
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

// Parse validates the file header and drives chunk-level parsing,
// returning every rendered event in (chunk index, record index) order
// together with summary stats. Phases run in order; the first fatal
// error aborts.
func (f *FileImage) Parse() ([]RenderedEvent, Stats, error) {
	if f.size < fileHeaderSize {
		return nil, Stats{}, ErrTooSmall
	}

	hdr, err := f.parseFileHeader()
	if err != nil {
		return nil, Stats{}, err
	}
	f.header = hdr

	if f.opts.ValidateChecksums && !f.checksumValid(hdr) {
		f.logger.Warnf("file header checksum mismatch")
	}

	return f.runDriver()
}
