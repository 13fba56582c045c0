package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skyisland.ai/internal/protocol"
)

func main() {
	var (
		url          = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name         = flag.String("name", "bot", "player name prefix")
		n            = flag.Int("n", 1, "number of simulated players")
		worldName    = flag.String("world", "", "world to join (default: server default)")
		playerID     = flag.String("player", "", "fixed player id for a returning player (only with -n 1)")
		respawnEvery = flag.Duration("respawn_every", 10*time.Second, "send RESPAWN at this interval (0 disables)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		id := uuid.New()
		firstJoin := true
		if *playerID != "" && *n == 1 {
			parsed, err := uuid.Parse(*playerID)
			if err != nil {
				logger.Fatalf("bad -player: %v", err)
			}
			id, firstJoin = parsed, false
		}
		b := &bot{
			url:          *url,
			id:           id,
			name:         fmt.Sprintf("%s-%d", *name, i),
			world:        *worldName,
			firstJoin:    firstJoin,
			respawnEvery: *respawnEvery,
			logger:       log.New(os.Stdout, fmt.Sprintf("[bot %d] ", i), log.LstdFlags|log.Lmicroseconds),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.run(ctx); err != nil {
				b.logger.Printf("stopped: %v", err)
			}
		}()
	}
	wg.Wait()
}

// bot stands in for a game host with one connected player.
type bot struct {
	url          string
	id           uuid.UUID
	name         string
	world        string
	firstJoin    bool
	respawnEvery time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	hasBed  bool
	lastPos [3]int
}

func (b *bot) run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerID:        b.id.String(),
		Name:            b.name,
		World:           b.world,
		FirstJoin:       b.firstJoin,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- b.readLoop(conn) }()

	var tick <-chan time.Time
	if b.respawnEvery > 0 {
		t := time.NewTicker(b.respawnEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return nil
		case err := <-readErr:
			return err
		case <-tick:
			b.mu.Lock()
			bed, from := b.hasBed, b.lastPos
			b.mu.Unlock()
			b.logger.Printf("RESPAWN bed=%v from=%v", bed, from)
			if err := conn.WriteJSON(protocol.RespawnMsg{Type: protocol.TypeRespawn, ProtocolVersion: protocol.Version, BedSpawn: bed}); err != nil {
				return fmt.Errorf("send RESPAWN: %w", err)
			}
		}
	}
}

func (b *bot) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := b.handle(msg); err != nil {
			return err
		}
	}
}

func (b *bot) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return nil
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return nil
		}
		if w.Island != nil {
			b.logger.Printf("WELCOME player=%s tick=%d island=%s%v", w.PlayerID, w.Tick, w.Island.World, w.Island.Pos)
		} else {
			b.logger.Printf("WELCOME player=%s tick=%d has_island=%v", w.PlayerID, w.Tick, w.HasIsland)
		}

	case protocol.TypeTeleport, protocol.TypeSetRespawn:
		var l protocol.LocationMsg
		if err := json.Unmarshal(msg, &l); err != nil {
			return nil
		}
		b.mu.Lock()
		if base.Type == protocol.TypeSetRespawn {
			b.hasBed = true
		} else {
			b.lastPos = l.Pos
		}
		b.mu.Unlock()
		b.logger.Printf("%s %s%v", base.Type, l.World, l.Pos)

	case protocol.TypeRespawnTarget:
		var r protocol.RespawnTargetMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return nil
		}
		b.mu.Lock()
		b.lastPos = r.Pos
		b.mu.Unlock()
		b.logger.Printf("RESPAWN_TARGET source=%s %s%v", r.Source, r.World, r.Pos)

	case protocol.TypeNotice:
		var nm protocol.NoticeMsg
		if err := json.Unmarshal(msg, &nm); err == nil {
			b.logger.Printf("NOTICE %q", nm.Text)
		}

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil
		}
		b.logger.Printf("ERROR %s: %s", e.Code, e.Message)
	}
	return nil
}
