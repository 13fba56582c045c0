package main

import (
	"fmt"
	"io"

	"skyisland.ai/internal/sim/engine"
)

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(w io.Writer, st engine.Stats, idx runtimeIndex) {
	gauge := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}
	counter := func(name, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %v\n", name, v)
	}

	gauge("skyisland_tick", "Current engine tick.", st.Tick)
	gauge("skyisland_players", "Connected players.", st.Players)
	gauge("skyisland_islands", "Registered islands.", st.Islands)
	gauge("skyisland_occupied_slots", "Grid slots known to the allocator.", st.Occupied)
	gauge("skyisland_chest_chains_active", "Chest population chains in flight.", st.ActiveChests)
	counter("skyisland_chest_chains_done_total", "Chest chains that verified.", st.ChestsDone)
	counter("skyisland_chest_chains_abandoned_total", "Chest chains that gave up.", st.ChestsFailed)
	gauge("skyisland_scheduler_pending", "Callbacks waiting in the scheduler.", st.PendingTasks)
	gauge("skyisland_loaded_chunks", "Loaded chunks across all worlds.", st.LoadedChunks)
	counter("skyisland_dropped_frames_total", "Outbound frames dropped on full queues.", st.DroppedFrames)

	if idx == nil {
		return
	}
	qs := idx.Stats()
	gauge("skyisland_index_queue_depth", "Index writer backlog.", qs.QueueDepth)
	counter("skyisland_index_dropped_total", "Index writes dropped on a full queue.", qs.DropAuditTotal+qs.DropSnapshotTotal+qs.DropIslandsTotal)
}
