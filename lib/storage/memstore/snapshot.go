package memstore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ValentinKolb/dShard/lib/schema"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum        = "DSHMEMST" // File format identifier
	snapshotVersion = 1          // Snapshot format version
)

// --------------------------------------------------------------------------
// Save
// --------------------------------------------------------------------------

// Save writes a snapshot of all counters and tables to w.
// Concurrent reads and writes are allowed during Save.
func (s *Store) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}

	// Collect counters first so that the count matches the written entries
	type counterEntry struct {
		name  string
		value uint64
	}
	var counters []counterEntry
	s.counters.Range(func(name string, value uint64) bool {
		counters = append(counters, counterEntry{name, value})
		return true
	})

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(counters))); err != nil {
		return err
	}
	for _, c := range counters {
		if err := writeString(bw, c.name); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, c.value); err != nil {
			return err
		}
	}

	// Collect tables
	var tables []*table
	s.tables.Range(func(_ string, t *table) bool {
		tables = append(tables, t)
		return true
	})

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(tables))); err != nil {
		return err
	}
	for _, t := range tables {
		if err := saveTable(bw, t); err != nil {
			return fmt.Errorf("table %s: %w", t.name, err)
		}
	}

	return bw.Flush()
}

func saveTable(w io.Writer, t *table) error {
	if err := writeString(w, t.name); err != nil {
		return err
	}

	// Write field layout
	fields := t.fields.Fields()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fields))); err != nil {
		return err
	}
	for _, f := range fields {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := writeString(w, string(f.Type)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(f.Size)); err != nil {
			return err
		}
	}

	// Snapshot rows (the skip list may grow while we iterate)
	type rowEntry struct {
		id      uint64
		payload []byte
	}
	var (
		rows   []rowEntry
		encErr error
	)
	t.rows.Range(func(id uint64, values schema.Values) bool {
		payload, err := json.Marshal(values)
		if err != nil {
			encErr = err
			return false
		}
		rows = append(rows, rowEntry{id, payload})
		return true
	})
	if encErr != nil {
		return encErr
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(rows))); err != nil {
		return err
	}
	for _, r := range rows {
		if err := binary.Write(w, binary.LittleEndian, r.id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(r.payload))); err != nil {
			return err
		}
		if _, err := w.Write(r.payload); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Load
// --------------------------------------------------------------------------

// Load replaces the content of the store with the snapshot read from r.
//
// Thread-safety: This function is not thread-safe and must not be called
// while the store is in use.
func (s *Store) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, snapshotVersion)
	}

	counters := xsync.NewMapOf[string, uint64]()
	tables := xsync.NewMapOf[string, *table]()

	// Read counters
	var counterCount uint64
	if err := binary.Read(br, binary.LittleEndian, &counterCount); err != nil {
		return err
	}
	for i := uint64(0); i < counterCount; i++ {
		name, err := readString(br)
		if err != nil {
			return err
		}
		var value uint64
		if err := binary.Read(br, binary.LittleEndian, &value); err != nil {
			return err
		}
		counters.Store(name, value)
	}

	// Read tables
	var tableCount uint64
	if err := binary.Read(br, binary.LittleEndian, &tableCount); err != nil {
		return err
	}
	for i := uint64(0); i < tableCount; i++ {
		t, err := loadTable(br)
		if err != nil {
			return err
		}
		tables.Store(t.name, t)
		log.Debugf("loaded table %s", t)
	}

	s.counters = counters
	s.tables = tables
	return nil
}

func loadTable(r io.Reader) (*table, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}

	var fieldCount uint32
	if err := binary.Read(r, binary.LittleEndian, &fieldCount); err != nil {
		return nil, err
	}
	fields := make([]schema.Field, fieldCount)
	for i := range fields {
		fname, err := readString(r)
		if err != nil {
			return nil, err
		}
		ftype, err := readString(r)
		if err != nil {
			return nil, err
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		fields[i] = schema.Field{Name: fname, Type: schema.FieldType(ftype), Size: int(size)}
	}
	fs, err := schema.NewFieldSchema(fields...)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}

	t := newTable(name, fs)

	var rowCount uint64
	if err := binary.Read(r, binary.LittleEndian, &rowCount); err != nil {
		return nil, err
	}
	for i := uint64(0); i < rowCount; i++ {
		var id uint64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, err
		}
		var payloadLen uint32
		if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
			return nil, err
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		values, err := decodeRow(fs, payload)
		if err != nil {
			return nil, fmt.Errorf("table %s, row %d: %w", name, id, err)
		}
		t.rows.Store(id, values)
	}
	return t, nil
}

// decodeRow decodes a JSON row and restores the canonical Go types of the schema
func decodeRow(fields *schema.FieldSchema, payload []byte) (schema.Values, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	values := make(schema.Values, len(raw))
	for name, v := range raw {
		f, ok := fields.Field(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		num, isNum := v.(json.Number)
		switch {
		case v == nil:
			values[name] = nil
		case isNum && f.Type == schema.FieldTInt:
			i, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			values[name] = i
		case isNum && f.Type == schema.FieldTFloat:
			fl, err := num.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			values[name] = fl
		default:
			values[name] = v
		}
	}
	return values, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
