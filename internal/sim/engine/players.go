package engine

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"skyisland.ai/internal/protocol"
	"skyisland.ai/internal/sim/island/model"
	"skyisland.ai/internal/sim/island/spawn"
)

var ErrPlayerOffline = errors.New("player offline")

type session struct {
	id    uuid.UUID
	name  string
	world string
	out   chan []byte
}

func (e *Engine) handleJoin(req JoinRequest) {
	reply := func(r JoinResponse) {
		if req.Resp != nil {
			req.Resp <- r
		}
	}
	if req.PlayerID == uuid.Nil {
		m := protocol.NewError(protocol.ErrBadRequest, "player_id required")
		reply(JoinResponse{Err: &m})
		return
	}
	if _, ok := e.sessions[req.PlayerID]; ok {
		m := protocol.NewError(protocol.ErrConflict, "player already connected")
		reply(JoinResponse{Err: &m})
		return
	}
	worldName := req.World
	if worldName == "" {
		worldName = e.tune.DefaultWorld
	}
	if !e.world.HasWorld(worldName) {
		m := protocol.NewError(protocol.ErrWorldNotFound, "unknown world "+worldName)
		reply(JoinResponse{Err: &m})
		return
	}

	e.sessions[req.PlayerID] = &session{id: req.PlayerID, name: req.Name, world: worldName, out: req.Out}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        req.PlayerID.String(),
		Tick:            e.tick,
	}
	if c, ok := e.reg.Get(req.PlayerID); ok {
		welcome.HasIsland = true
		welcome.Island = &protocol.IslandRef{World: c.World, Pos: c.Pos.ToArray()}
	}
	reply(JoinResponse{Welcome: welcome})

	e.coord.OnJoin(spawn.JoinEvent{
		Player:    spawn.Player{ID: req.PlayerID, Name: req.Name, World: worldName},
		FirstJoin: req.FirstJoin,
	})
}

func (e *Engine) handleLeave(id uuid.UUID) {
	delete(e.sessions, id)
}

func (e *Engine) handleRespawn(req RespawnRequest) {
	msg := protocol.RespawnTargetMsg{Type: protocol.TypeRespawnTarget, ProtocolVersion: protocol.Version}
	loc, src := e.coord.OnRespawn(spawn.RespawnEvent{PlayerID: req.PlayerID, BedSpawn: req.BedSpawn})
	switch src {
	case spawn.SourceIsland:
	case spawn.SourceBed:
		if bed, ok := e.respawns[req.PlayerID]; ok {
			loc = bed
		} else {
			loc = e.fallbackSpawn(req.PlayerID)
		}
	default:
		loc = e.fallbackSpawn(req.PlayerID)
	}
	msg.World = loc.World
	msg.Pos = loc.Pos.ToArray()
	msg.Source = string(src)
	if req.Resp != nil {
		req.Resp <- msg
	}
}

func (e *Engine) fallbackSpawn(id uuid.UUID) model.Location {
	w := e.tune.DefaultWorld
	if s, ok := e.sessions[id]; ok {
		w = s.world
	}
	return model.Location{World: w, Pos: model.Vec3iFromArray(e.tune.FallbackSpawn(w))}
}

// hostPlayers is the player side the coordinator talks to.
type hostPlayers struct{ e *Engine }

func (p hostPlayers) Teleport(id uuid.UUID, loc model.Location) error {
	s, ok := p.e.sessions[id]
	if !ok {
		return ErrPlayerOffline
	}
	s.world = loc.World
	p.e.send(s, protocol.LocationMsg{Type: protocol.TypeTeleport, ProtocolVersion: protocol.Version, World: loc.World, Pos: loc.Pos.ToArray()})
	return nil
}

func (p hostPlayers) SetRespawn(id uuid.UUID, loc model.Location) error {
	p.e.respawns[id] = loc
	if s, ok := p.e.sessions[id]; ok {
		p.e.send(s, protocol.LocationMsg{Type: protocol.TypeSetRespawn, ProtocolVersion: protocol.Version, World: loc.World, Pos: loc.Pos.ToArray()})
	}
	return nil
}

func (p hostPlayers) BedSpawn(id uuid.UUID) (model.Location, bool) {
	loc, ok := p.e.respawns[id]
	return loc, ok
}

func (p hostPlayers) Notify(id uuid.UUID, text string) {
	if s, ok := p.e.sessions[id]; ok {
		p.e.send(s, protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Text: text})
	}
}

func (e *Engine) send(s *session, v any) {
	if s.out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		e.log.Printf("encode for %s: %v", s.id, err)
		return
	}
	select {
	case s.out <- b:
	default:
		e.droppedFrames++
		e.log.Printf("outbound queue full for %s, dropping frame", s.id)
	}
}
