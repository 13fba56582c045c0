package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skyisland.ai/internal/protocol"
	"skyisland.ai/internal/sim/engine"
)

// Engine is the part of the tick loop the bridge talks to.
type Engine interface {
	Join() chan<- engine.JoinRequest
	Leave() chan<- uuid.UUID
	Respawn() chan<- engine.RespawnRequest
}

type Server struct {
	engine Engine
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(e Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		engine: e,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out := s.handshake(conn)
		if playerID == uuid.Nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. Respawn replies share the queue so frames stay
		// ordered.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.ValidateInbound(msg)
			if err != nil {
				s.sendError(out, protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				s.sendError(out, protocol.ErrProtoVersion, "bad protocol_version")
				continue
			}
			switch base.Type {
			case protocol.TypeRespawn:
				var m protocol.RespawnMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					continue
				}
				s.respawn(ctx, playerID, m, out)
			default:
				s.sendError(out, protocol.ErrBadRequest, "unexpected "+base.Type)
			}
		}

		// Cleanup.
		s.engine.Leave() <- playerID
	}
}

func (s *Server) respawn(ctx context.Context, id uuid.UUID, m protocol.RespawnMsg, out chan []byte) {
	resp := make(chan protocol.RespawnTargetMsg, 1)
	select {
	case s.engine.Respawn() <- engine.RespawnRequest{PlayerID: id, BedSpawn: m.BedSpawn, Resp: resp}:
	case <-ctx.Done():
		return
	}
	select {
	case target := <-resp:
		b, err := json.Marshal(target)
		if err != nil {
			return
		}
		select {
		case out <- b:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
}

func (s *Server) sendError(out chan []byte, code, msg string) {
	b, _ := json.Marshal(protocol.NewError(code, msg))
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (uuid.UUID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}

	base, err := protocol.ValidateInbound(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reason := "expected HELLO"
		if err != nil && base.Type == protocol.TypeHello {
			reason = "bad HELLO"
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return uuid.Nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(hello.PlayerID)
	if err != nil || id == uuid.Nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad player_id"), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}

	out := make(chan []byte, 32)
	respCh := make(chan engine.JoinResponse, 1)
	s.engine.Join() <- engine.JoinRequest{
		PlayerID:  id,
		Name:      strings.TrimSpace(hello.Name),
		World:     strings.TrimSpace(hello.World),
		FirstJoin: hello.FirstJoin,
		Out:       out,
		Resp:      respCh,
	}
	resp := <-respCh
	if resp.Err != nil {
		_ = writeJSON(conn, resp.Err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, resp.Err.Code), time.Now().Add(time.Second))
		return uuid.Nil, nil
	}
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.engine.Leave() <- id
		return uuid.Nil, nil
	}
	s.log.Printf("player %s (%s) connected first_join=%t", hello.Name, id, hello.FirstJoin)
	return id, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
