package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"voxelterrain.ai/internal/observerproto"
	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/voxel/mesh"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	srv := NewServer(hub, func() observerproto.WorldParams {
		return observerproto.WorldParams{Seed: 7, Generator: "hash", ChunkSize: 16, ChunkHeight: 96, ViewDistance: 2}
	}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return hub, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.WriteJSON(observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version}))
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(b, &head))
	return head.Type, b
}

func cube() *mesh.Mesh {
	m := &mesh.Mesh{}
	for f := mesh.Face(0); f < mesh.FaceCount; f++ {
		m.AddQuad(mgl32.Vec3{}, f, mgl32.Vec3{1, 1, 1})
	}
	return m
}

func TestBootstrap(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, observerproto.Version, got.ProtocolVersion)
	require.Equal(t, int64(7), got.WorldParams.Seed)
	require.Equal(t, 2, got.WorldParams.ViewDistance)
}

func TestStreamsMeshesAndViews(t *testing.T) {
	hub, ts := newTestServer(t)

	var mu sync.Mutex
	var views [][2]float64
	hub.OnView(func(x, z float64) {
		mu.Lock()
		views = append(views, [2]float64{x, z})
		mu.Unlock()
	})

	reg := registry.NewMemory()
	early := reg.CreateEntity()
	hub.AddMesh(early, cube(), mgl32.Vec3{16, 0, 0})

	conn := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Sessions() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Replay of what was loaded before the join.
	typ, b := readType(t, conn)
	require.Equal(t, observerproto.TypeChunkMesh, typ)
	var cm observerproto.ChunkMeshMsg
	require.NoError(t, json.Unmarshal(b, &cm))
	require.Equal(t, early.String(), cm.Entity)
	require.Equal(t, [3]float32{16, 0, 0}, cm.Offset)
	m, err := observerproto.DecodeMesh(cm.Encoding, cm.Data)
	require.NoError(t, err)
	require.Equal(t, 6, m.Quads())
	require.Equal(t, 12, cm.Triangles)

	late := reg.CreateEntity()
	hub.AddMesh(late, cube(), mgl32.Vec3{0, 0, -16})
	typ, b = readType(t, conn)
	require.Equal(t, observerproto.TypeChunkMesh, typ)
	require.Contains(t, string(b), late.String())

	hub.RemoveMesh(early)
	hub.RemoveMesh(early)
	typ, b = readType(t, conn)
	require.Equal(t, observerproto.TypeChunkRemove, typ)
	require.Contains(t, string(b), early.String())
	require.Equal(t, 1, hub.Meshes())

	require.NoError(t, conn.WriteJSON(observerproto.ViewMsg{Type: observerproto.TypeView, ProtocolVersion: observerproto.Version, X: 40, Z: -8}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(views) == 1 && views[0] == [2]float64{40, -8}
	}, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Sessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRejectsMissingSubscribe(t *testing.T) {
	_, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(observerproto.ViewMsg{Type: observerproto.TypeView, ProtocolVersion: observerproto.Version}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err=%v", err)
}

func TestSlowSessionIsKicked(t *testing.T) {
	hub := NewHub(nil)
	s := hub.join("O1", 0)
	reg := registry.NewMemory()
	m := cube()
	for i := 0; i < cap(s.out)+1; i++ {
		hub.AddMesh(reg.CreateEntity(), m, mgl32.Vec3{})
	}
	require.True(t, s.kicked.Load())
	require.Zero(t, hub.Sessions())
	select {
	case <-s.done:
	default:
		t.Fatal("kicked session not closed")
	}
}
