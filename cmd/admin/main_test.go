package main

import (
	"testing"

	"skyisland.ai/internal/persistence/snapshot"
	"skyisland.ai/internal/sim/island/model"
)

func TestParseAABBOrdersCorners(t *testing.T) {
	min, max, err := parseAABB("10,70,-5:0,60,5")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	if min != [3]int{0, 60, -5} || max != [3]int{10, 70, 5} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("1,2,3"); err == nil {
		t.Fatalf("expected error for single corner")
	}
}

func TestAuditFilter(t *testing.T) {
	entries := []model.AuditEntry{
		{Tick: 1, Type: model.AuditIslandAssigned, PlayerID: "a", Pos: [3]int{200, 64, 0}},
		{Tick: 33, Type: model.AuditChestDone, Pos: [3]int{201, 70, 1}},
		{Tick: 90, Type: model.AuditChestAbandoned, Pos: [3]int{-199, 70, 401}},
	}
	got := auditFilter{SinceTick: 2}.apply(entries)
	if len(got) != 2 {
		t.Fatalf("since filter: %+v", got)
	}
	got = auditFilter{Box: &[2][3]int{{150, 0, -50}, {250, 100, 50}}}.apply(entries)
	if len(got) != 2 || got[1].Type != model.AuditChestDone {
		t.Fatalf("box filter: %+v", got)
	}
	got = auditFilter{Player: "a", Type: model.AuditIslandAssigned}.apply(entries)
	if len(got) != 1 {
		t.Fatalf("player filter: %+v", got)
	}
}

func TestContainersIn(t *testing.T) {
	snap := snapshot.SnapshotV1{Worlds: []snapshot.WorldV1{
		{Name: "world", Chunks: []snapshot.ChunkV1{
			{CX: 12, Containers: []snapshot.ContainerV1{{Pos: [3]int{201, 70, 1}, Size: 27, Slots: []snapshot.SlotV1{{Slot: 0, Item: "ICE", Count: 2}}}}},
			{CX: -13, Containers: []snapshot.ContainerV1{{Pos: [3]int{-199, 70, 1}, Size: 27}}},
		}},
		{Name: "nether", Chunks: []snapshot.ChunkV1{{Containers: []snapshot.ContainerV1{{Pos: [3]int{1, 70, 1}, Size: 27}}}}},
	}}
	all := containersIn(snap, "", nil)
	if len(all) != 3 || all[0].World != "nether" || all[1].Pos[0] != -199 {
		t.Fatalf("all: %+v", all)
	}
	boxed := containersIn(snap, "world", &[2][3]int{{0, 0, 0}, {300, 100, 10}})
	if len(boxed) != 1 || len(boxed[0].Items) != 1 || boxed[0].Items[0].Item != "ICE" {
		t.Fatalf("boxed: %+v", boxed)
	}
}
