// Package checkpoint persists the last successfully emitted historical
// record so replay can resume after a crash or restart.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
)

// magic identifies the checkpoint file format; version allows the layout
// to evolve without silently misreading an old file.
const (
	magic   uint32 = 0x52504b31 // "RPK1"
	version uint8  = 1
)

// Checkpoint is the durable marker of the last emitted historical record.
type Checkpoint struct {
	LastIndex         int64
	LastEffectiveTime string
}

// Store reads and writes a single Checkpoint at a fixed path.
type Store struct {
	path string
	log  logrus.FieldLogger
}

// NewStore returns a Store backed by path.
func NewStore(path string, log logrus.FieldLogger) *Store {
	return &Store{path: path, log: log}
}

// Load reads the checkpoint, if present. A missing file is a fresh start
// (nil, nil). A corrupt file is logged as a warning and also treated as a
// fresh start — load never aborts the process.
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cp, err := decode(data)
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("checkpoint file corrupt; starting fresh")
		return nil, nil
	}
	return cp, nil
}

// Save writes (index, effectiveISO) crash-atomically: the new content is
// written to a temp file in the same directory and renamed into place, so
// a reader never observes a partially written checkpoint.
func (s *Store) Save(index int64, effectiveISO string) error {
	data := encode(Checkpoint{LastIndex: index, LastEffectiveTime: effectiveISO})
	return renameio.WriteFile(s.path, data, 0o644)
}

func encode(cp Checkpoint) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, magic)
	_ = binary.Write(&buf, binary.BigEndian, version)
	_ = binary.Write(&buf, binary.BigEndian, cp.LastIndex)
	effBytes := []byte(cp.LastEffectiveTime)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(effBytes)))
	buf.Write(effBytes)

	sum := crc32.ChecksumIEEE(buf.Bytes())
	_ = binary.Write(&buf, binary.BigEndian, sum)
	return buf.Bytes()
}

func decode(data []byte) (*Checkpoint, error) {
	r := bytes.NewReader(data)

	var gotMagic uint32
	var gotVersion uint8
	var index int64
	var effLen uint16

	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return nil, fmt.Errorf("checkpoint: reading magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("checkpoint: bad magic %x", gotMagic)
	}
	if err := binary.Read(r, binary.BigEndian, &gotVersion); err != nil {
		return nil, fmt.Errorf("checkpoint: reading version: %w", err)
	}
	if gotVersion != version {
		return nil, fmt.Errorf("checkpoint: unsupported version %d", gotVersion)
	}
	if err := binary.Read(r, binary.BigEndian, &index); err != nil {
		return nil, fmt.Errorf("checkpoint: reading index: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &effLen); err != nil {
		return nil, fmt.Errorf("checkpoint: reading effective-time length: %w", err)
	}
	effBytes := make([]byte, effLen)
	if _, err := io.ReadFull(r, effBytes); err != nil {
		return nil, fmt.Errorf("checkpoint: reading effective-time: %w", err)
	}

	var wantSum uint32
	if err := binary.Read(r, binary.BigEndian, &wantSum); err != nil {
		return nil, fmt.Errorf("checkpoint: reading checksum: %w", err)
	}
	gotSum := crc32.ChecksumIEEE(data[:len(data)-4])
	if gotSum != wantSum {
		return nil, fmt.Errorf("checkpoint: checksum mismatch (corrupt file)")
	}

	return &Checkpoint{LastIndex: index, LastEffectiveTime: string(effBytes)}, nil
}
