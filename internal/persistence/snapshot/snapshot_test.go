package snapshot

import (
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds", "world.snap.zst")
	in := SnapshotV1{
		Header:  Header{Version: Version, Tick: 1234, Worlds: 1},
		Palette: []string{"AIR", "DIRT", "CHEST"},
		Worlds: []WorldV1{{
			Name: "world", MinY: -64, MaxY: 320,
			Chunks: []ChunkV1{{
				CX: 12, CZ: -3,
				Sections:   []SectionV1{{Y: 4, Blocks: []byte{1, 2, 0, 0x80, 0x20}}},
				Containers: []ContainerV1{{Pos: [3]int{193, 70, -47}, Size: 27, Slots: []SlotV1{{Slot: 0, Item: "BREAD", Count: 16}}}},
			}},
		}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if out.Header.Tick != 1234 || len(out.Worlds) != 1 || len(out.Palette) != 3 {
		t.Fatalf("unexpected snapshot %+v", out.Header)
	}
	ch := out.Worlds[0].Chunks[0]
	if ch.CX != 12 || ch.CZ != -3 || len(ch.Sections[0].Blocks) != 5 {
		t.Fatalf("unexpected chunk %+v", ch)
	}
	if ch.Containers[0].Slots[0].Item != "BREAD" {
		t.Fatalf("unexpected container %+v", ch.Containers[0])
	}
}

func TestReadSnapshot_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
