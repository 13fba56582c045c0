package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (e *Engine) Run(ctx context.Context) error {
	hz := e.tune.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []uuid.UUID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case req := <-e.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-e.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-e.respawn:
			e.handleRespawn(req)
		case ch := <-e.statsReq:
			ch <- e.stats()
		case <-ticker.C:
			e.step(pendingJoins, pendingLeaves)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
		}
	}
}

func (e *Engine) Stop() { close(e.stop) }

// StepOnce advances one tick with the same ordering as Run. Tests drive the
// engine with it instead of Run.
func (e *Engine) StepOnce(joins []JoinRequest, leaves []uuid.UUID) uint64 {
	e.step(joins, leaves)
	return e.tick
}

// Stats asks the running loop for counters.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	ch := make(chan Stats, 1)
	select {
	case e.statsReq <- ch:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (e *Engine) step(joins []JoinRequest, leaves []uuid.UUID) {
	e.tick++
	for _, id := range leaves {
		e.handleLeave(id)
	}
	for _, req := range joins {
		e.handleJoin(req)
	}
	e.sched.Tick()
	e.world.Tick()

	every := e.tune.SnapshotEveryTicks
	if e.snapshotSink != nil && every > 0 && e.tick%uint64(every) == 0 {
		select {
		case e.snapshotSink <- e.world.ExportSnapshot(e.tick):
		default:
			e.log.Printf("snapshot sink busy, skipping tick %d", e.tick)
		}
	}
}
