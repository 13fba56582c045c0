package model

import "testing"

func TestParseGridKey(t *testing.T) {
	k, ok := ParseGridKey("-200, 400")
	if !ok || k != (GridKey{X: -200, Z: 400}) {
		t.Fatalf("unexpected parse: %+v ok=%v", k, ok)
	}
	if _, ok := ParseGridKey("12"); ok {
		t.Fatalf("expected missing comma to fail")
	}
	if _, ok := ParseGridKey("a,1"); ok {
		t.Fatalf("expected non-numeric to fail")
	}
	if got := (GridKey{X: 3, Z: -4}).String(); got != "3,-4" {
		t.Fatalf("unexpected key string %q", got)
	}
}

func TestCountNonEmpty(t *testing.T) {
	slots := make([]ItemStack, 27)
	slots[0] = ItemStack{Item: Bread, Count: 2}
	slots[3] = ItemStack{Item: Air, Count: 1}
	slots[5] = ItemStack{Item: Ice, Count: 0}
	slots[26] = ItemStack{Item: Ice, Count: 1}
	if got := CountNonEmpty(slots); got != 2 {
		t.Fatalf("expected 2 non-empty slots, got %d", got)
	}
}

func TestStarterItemsHasSixDistinctSlots(t *testing.T) {
	items := StarterItems()
	if len(items) != 6 {
		t.Fatalf("expected 6 starter items, got %d", len(items))
	}
	seen := map[string]bool{}
	for _, it := range items {
		if it.Empty() {
			t.Fatalf("starter item %v is empty", it)
		}
		seen[it.Item] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected distinct items, got %v", items)
	}
}
