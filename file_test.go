// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "testing"

func TestParse_TooSmall(t *testing.T) {
	f, err := NewBytes(make([]byte, 64), &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	_, _, err = f.Parse()
	if err != ErrTooSmall {
		t.Fatalf("got %v, want ErrTooSmall", err)
	}
}

func TestParse_BadFileMagic(t *testing.T) {
	data := buildMinimalImage()
	copy(data[0:8], "NOTELFF\x00")

	f, _ := NewBytes(data, &Options{})
	_, _, err := f.Parse()
	if err != ErrFileMagicNotFound {
		t.Fatalf("got %v, want ErrFileMagicNotFound", err)
	}
}

func TestParse_HeaderOnlyFileYieldsNoEvents(t *testing.T) {
	// A bare 128-byte header with the magic and a 4096 block size is a
	// valid, chunkless file.
	data := make([]byte, fileHeaderSize)
	copy(data[0:8], fileMagic[:])
	data[40], data[41] = 0x00, 0x10

	f, _ := NewBytes(data, &Options{})
	events, stats, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.header.HeaderBlockSize != 4096 {
		t.Errorf("got header block size %d, want 4096", f.header.HeaderBlockSize)
	}
	if len(events) != 0 || stats.HealthyChunks != 0 {
		t.Errorf("expected no chunks and no events, got %d events, %+v", len(events), stats)
	}
}

func TestParse_MinimalChunkXML(t *testing.T) {
	data := buildMinimalImage()

	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	events, stats, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if stats.HealthyChunks != 1 || stats.UnhealthyChunks != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if ev.Text != "<Foo>bar</Foo>" {
		t.Errorf("got text %q, want %q", ev.Text, "<Foo>bar</Foo>")
	}
	if ev.RecordID != 1 {
		t.Errorf("got record id %d, want 1", ev.RecordID)
	}
	if ev.Diagnostic != "" {
		t.Errorf("got diagnostic %q, want none", ev.Diagnostic)
	}
}

func TestParse_MinimalChunkJSON(t *testing.T) {
	data := buildMinimalImage()

	f, err := NewBytes(data, &Options{OutputFormat: OutputJSON})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	events, _, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	want := `{"#name":"Foo","#content":["bar"]}`
	if events[0].Text != want {
		t.Errorf("got text %q, want %q", events[0].Text, want)
	}
}

// buildAttrImage is buildMinimalImage with an attribute on the record's
// element: <Event Name="X">42</Event>.
func buildAttrImage() []byte {
	img := make([]byte, fileHeaderBlockSize+chunkSize)
	copy(img[0:8], fileMagic[:])
	img[38] = 3

	cb := newChunkBuilder()
	cb.seek(recordRegionStart)
	cb.buildRecord(1, func(rb *chunkBuilder) {
		rb.fragmentHeader()
		rb.openElementWithAttrs("Event")
		rb.attribute("Name", "X")
		rb.closeStartElement()
		rb.unicodeValue("42")
		rb.endElement()
		rb.endOfFile()
	})
	copy(img[fileHeaderBlockSize:], cb.finishChunk())
	return img
}

func TestParse_AttributeRecordXML(t *testing.T) {
	f, _ := NewBytes(buildAttrImage(), &Options{})
	events, _, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if want := `<Event Name="X">42</Event>`; events[0].Text != want {
		t.Errorf("got text %q, want %q", events[0].Text, want)
	}
}

func TestParse_AttributeRecordJSON(t *testing.T) {
	f, _ := NewBytes(buildAttrImage(), &Options{OutputFormat: OutputJSON})
	events, _, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := `{"#name":"Event","#attrs":{"Name":"X"},"#content":["42"]}`
	if events[0].Text != want {
		t.Errorf("got text %q, want %q", events[0].Text, want)
	}
}

func TestParse_HeaderlessRecovery(t *testing.T) {
	data := buildMinimalImage()
	// Zero the chunk magic; the slot is rejected and must be recovered
	// by the headerless record scan instead of aborting the file.
	for i := 0; i < 8; i++ {
		data[fileHeaderBlockSize+i] = 0
	}

	f, _ := NewBytes(data, &Options{})
	events, stats, err := f.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if stats.HealthyChunks != 0 || stats.UnhealthyChunks != 1 || stats.RecoveredChunks != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Text != "<Foo>bar</Foo>" {
		t.Errorf("got text %q, want %q", events[0].Text, "<Foo>bar</Foo>")
	}
	if events[0].Diagnostic != DiagHeaderlessRecovery {
		t.Errorf("got diagnostic %q, want %q", events[0].Diagnostic, DiagHeaderlessRecovery)
	}
}

func TestParse_SingleThreadedMatchesParallel(t *testing.T) {
	data := buildAttrImage()

	serial, _ := NewBytes(data, &Options{MaxParallelism: 1})
	serialEvents, _, err := serial.Parse()
	if err != nil {
		t.Fatalf("serial Parse failed: %v", err)
	}

	parallel, _ := NewBytes(data, &Options{MaxParallelism: 4})
	parallelEvents, _, err := parallel.Parse()
	if err != nil {
		t.Fatalf("parallel Parse failed: %v", err)
	}

	if len(serialEvents) != len(parallelEvents) {
		t.Fatalf("event count mismatch: %d vs %d", len(serialEvents), len(parallelEvents))
	}
	for i := range serialEvents {
		if serialEvents[i].Text != parallelEvents[i].Text {
			t.Errorf("event %d text mismatch: %q vs %q", i, serialEvents[i].Text, parallelEvents[i].Text)
		}
	}
}
