package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"voxelterrain.ai/internal/observerproto"
)

func main() {
	var (
		base      = flag.String("url", "http://localhost:8080", "server base url")
		maxChunks = flag.Int("max_chunks", 0, "replay bound on join (0 = server default)")
		walk      = flag.Float64("walk", 0, "move the view along +X at this speed (world units/s, 0 = stay)")
		report    = flag.Duration("report", 5*time.Second, "stats log interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	boot, err := fetchBootstrap(ctx, *base)
	if err != nil {
		logger.Fatalf("bootstrap: %v", err)
	}
	p := boot.WorldParams
	logger.Printf("world seed=%d generator=%s chunk=%dx%d view_distance=%d", p.Seed, p.Generator, p.ChunkSize, p.ChunkHeight, p.ViewDistance)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(*base), nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		MaxChunks:       *maxChunks,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	if *walk != 0 {
		go walkView(ctx, conn, logger, *walk)
	}

	st := &viewState{entities: map[string]int{}}
	go func() {
		t := time.NewTicker(*report)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Print(st.summary())
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			logger.Print(st.summary())
			return
		}
		if err := st.handle(msg); err != nil {
			logger.Printf("message: %v", err)
		}
	}
}

type viewState struct {
	mu        sync.Mutex
	entities  map[string]int
	triangles int
	received  uint64
	bytes     uint64
	removed   int
}

func (s *viewState) handle(msg []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += uint64(len(msg))
	switch head.Type {
	case observerproto.TypeChunkMesh:
		var cm observerproto.ChunkMeshMsg
		if err := json.Unmarshal(msg, &cm); err != nil {
			return err
		}
		m, err := observerproto.DecodeMesh(cm.Encoding, cm.Data)
		if err != nil {
			return fmt.Errorf("%s: %w", cm.Entity, err)
		}
		tris := m.Triangles()
		if prev, ok := s.entities[cm.Entity]; ok {
			s.triangles -= prev
		}
		s.entities[cm.Entity] = tris
		s.triangles += tris
		s.received++
	case observerproto.TypeChunkRemove:
		var cr observerproto.ChunkRemoveMsg
		if err := json.Unmarshal(msg, &cr); err != nil {
			return err
		}
		if prev, ok := s.entities[cr.Entity]; ok {
			s.triangles -= prev
			delete(s.entities, cr.Entity)
			s.removed++
		}
	default:
		return fmt.Errorf("unknown type %q", head.Type)
	}
	return nil
}

func (s *viewState) summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("chunks=%d triangles=%s received=%d removed=%d transferred=%s",
		len(s.entities), humanize.Comma(int64(s.triangles)), s.received, s.removed, humanize.Bytes(s.bytes))
}

func walkView(ctx context.Context, conn *websocket.Conn, logger *log.Logger, speed float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			x := math.Round(speed * now.Sub(start).Seconds())
			v := observerproto.ViewMsg{
				Type:            observerproto.TypeView,
				ProtocolVersion: observerproto.Version,
				X:               x,
			}
			// gorilla allows one concurrent writer; the read loop never writes.
			if err := conn.WriteJSON(v); err != nil {
				logger.Printf("send VIEW: %v", err)
				return
			}
		}
	}
}

func fetchBootstrap(ctx context.Context, base string) (observerproto.BootstrapResponse, error) {
	var out observerproto.BootstrapResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v1/observer/bootstrap", nil)
	if err != nil {
		return out, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/v1/observer/ws"
}
