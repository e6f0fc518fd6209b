package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/id"
)

// recordWire is the msgpack shape of a spilled record. Keys carries
// the append order so reconstruction preserves it.
type recordWire struct {
	ID     string         `msgpack:"id"`
	Keys   []string       `msgpack:"keys"`
	Values map[string]any `msgpack:"values"`
}

func toWire(rec *pipeline.Record) recordWire {
	keys := rec.Keys()
	values := make(map[string]any, len(keys))
	for _, k := range keys {
		v, _ := rec.Get(k)
		values[k] = v
	}
	return recordWire{ID: rec.ID(), Keys: keys, Values: values}
}

func fromWire(w recordWire) *pipeline.Record {
	rec := pipeline.NewRecord(w.ID)
	for _, k := range w.Keys {
		rec.Set(k, normalize(w.Values[k]))
	}
	return rec
}

// normalize maps decoded msgpack values back onto the canonical Go
// types units see on the in-memory path, so a field stored as int
// replays as int rather than whatever compact width the wire chose.
// Integers come back as int, floats as float64, containers
// recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int(x)
		}
		return x
	case float32:
		return float64(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	case map[any]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	default:
		return v
	}
}

// SpillWriter appends records to an msgpack stream on disk.
type SpillWriter struct {
	f     *os.File
	buf   *bufio.Writer
	enc   *msgpack.Encoder
	path  string
	count int
}

// NewSpillWriter creates a spill file in dir with a fresh spill ID.
func NewSpillWriter(dir string) (*SpillWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("stream: create spill dir: %w", err)
	}
	path := filepath.Join(dir, id.NewSpillID().String()+".spill")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stream: create spill file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &SpillWriter{f: f, buf: buf, enc: msgpack.NewEncoder(buf), path: path}, nil
}

// Append writes one record to the spill stream.
func (w *SpillWriter) Append(rec *pipeline.Record) error {
	if err := w.enc.Encode(toWire(rec)); err != nil {
		return fmt.Errorf("stream: spill record %s: %w", rec.ID(), err)
	}
	w.count++
	return nil
}

// Count returns how many records have been appended.
func (w *SpillWriter) Count() int { return w.count }

// Path returns the spill file location.
func (w *SpillWriter) Path() string { return w.path }

// Close flushes and closes the spill file.
func (w *SpillWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("stream: flush spill: %w", err)
	}
	return w.f.Close()
}

// SpillReader streams records back out of a spill file.
type SpillReader struct {
	f    *os.File
	dec  *msgpack.Decoder
	path string
}

// OpenSpillReader opens a spill file for replay.
func OpenSpillReader(path string) (*SpillReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stream: open spill file: %w", err)
	}
	return &SpillReader{f: f, dec: msgpack.NewDecoder(bufio.NewReader(f)), path: path}, nil
}

// Next returns the next spilled record, or io.EOF after the last one.
func (r *SpillReader) Next() (*pipeline.Record, error) {
	var w recordWire
	if err := r.dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("stream: read spill record: %w", err)
	}
	return fromWire(w), nil
}

// Close closes and removes the spill file. Spills are run-scoped
// scratch space, never a durability mechanism.
func (r *SpillReader) Close() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	return os.Remove(r.path)
}

// SpillThrough decouples a producer from a slow consumer by draining
// in to a disk file without backpressure, then replaying the file to
// the returned channel. Peak memory stays bounded while the producer
// runs at its own pace; the cost is that the consumer starts only
// after the producer finishes. The error channel yields at most one
// error and closes when the replay is done.
func SpillThrough(ctx context.Context, dir string, in <-chan *pipeline.Record, depth int) (<-chan *pipeline.Record, <-chan error) {
	out := make(chan *pipeline.Record, depth)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		w, err := NewSpillWriter(dir)
		if err != nil {
			errc <- err
			return
		}
		for rec := range in {
			if err := w.Append(rec); err != nil {
				w.Close()
				errc <- err
				return
			}
		}
		if err := w.Close(); err != nil {
			errc <- err
			return
		}

		r, err := OpenSpillReader(w.Path())
		if err != nil {
			errc <- err
			return
		}
		defer r.Close()

		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errc <- err
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return out, errc
}
