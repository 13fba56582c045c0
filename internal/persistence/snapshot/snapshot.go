package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Worlds  int    `json:"worlds"`
}

// SnapshotV1 is the persisted state of every world: blocks of every chunk
// that was ever touched plus chest inventories.
type SnapshotV1 struct {
	Header  Header    `json:"header"`
	Palette []string  `json:"palette"`
	Worlds  []WorldV1 `json:"worlds"`
}

type WorldV1 struct {
	Name   string    `json:"name"`
	MinY   int       `json:"min_y"`
	MaxY   int       `json:"max_y"`
	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	CX         int           `json:"cx"`
	CZ         int           `json:"cz"`
	Sections   []SectionV1   `json:"sections"`
	Containers []ContainerV1 `json:"containers,omitempty"`
}

// SectionV1 holds one 16x16x16 section as run-encoded palette ids.
type SectionV1 struct {
	Y      int    `json:"y"`
	Blocks []byte `json:"blocks"`
}

type ContainerV1 struct {
	Pos   [3]int   `json:"pos"`
	Size  int      `json:"size"`
	Slots []SlotV1 `json:"slots"`
}

type SlotV1 struct {
	Slot  int    `json:"slot"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, all
// inside one zstd stream. The file is replaced atomically.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line duplicates what gob carries; it exists for tooling.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
