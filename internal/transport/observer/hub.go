package observer

import (
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.ai/internal/observerproto"
	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/voxel/mesh"
)

// Hub is a scene that streams meshes to websocket observers. It keeps the
// encoded CHUNK_MESH of every live entity so late joiners get a replay.
type Hub struct {
	log *log.Logger

	mu       sync.Mutex
	meshes   map[registry.Entity][]byte
	sessions map[string]*session
	onView   func(x, z float64)

	encodeErrs atomic.Uint64
}

type session struct {
	id   string
	out  chan []byte
	done chan struct{}
	once sync.Once

	sentMsgs  atomic.Uint64
	sentBytes atomic.Uint64
	kicked    atomic.Bool
}

func (s *session) close() { s.once.Do(func() { close(s.done) }) }

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		log:      logger,
		meshes:   map[registry.Entity][]byte{},
		sessions: map[string]*session{},
	}
}

// OnView registers the callback for VIEW messages from any observer.
func (h *Hub) OnView(fn func(x, z float64)) {
	h.mu.Lock()
	h.onView = fn
	h.mu.Unlock()
}

func (h *Hub) AddMesh(e registry.Entity, m *mesh.Mesh, offset mgl32.Vec3) {
	if m == nil {
		return
	}
	data, err := observerproto.EncodeMesh(m)
	if err != nil {
		h.encodeErrs.Add(1)
		h.log.Printf("encode mesh %s: %v", e, err)
		return
	}
	b, _ := json.Marshal(observerproto.ChunkMeshMsg{
		Type:            observerproto.TypeChunkMesh,
		ProtocolVersion: observerproto.Version,
		Entity:          e.String(),
		Offset:          [3]float32{offset.X(), offset.Y(), offset.Z()},
		Quads:           m.Quads(),
		Triangles:       m.Triangles(),
		Encoding:        observerproto.EncodingZstdB64,
		Data:            data,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.meshes[e] = b
	h.broadcastLocked(b)
}

func (h *Hub) RemoveMesh(e registry.Entity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.meshes[e]; !ok {
		return
	}
	delete(h.meshes, e)
	b, _ := json.Marshal(observerproto.ChunkRemoveMsg{
		Type:            observerproto.TypeChunkRemove,
		ProtocolVersion: observerproto.Version,
		Entity:          e.String(),
	})
	h.broadcastLocked(b)
}

// broadcastLocked never blocks. A session that cannot keep up is kicked
// rather than silently missing a mesh.
func (h *Hub) broadcastLocked(b []byte) {
	for id, s := range h.sessions {
		select {
		case s.out <- b:
		default:
			s.kicked.Store(true)
			s.close()
			delete(h.sessions, id)
		}
	}
}

func (h *Hub) join(id string, maxChunks int) *session {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := make([]registry.Entity, 0, len(h.meshes))
	for e := range h.meshes {
		keys = append(keys, e)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	if maxChunks > 0 && len(keys) > maxChunks {
		keys = keys[:maxChunks]
	}

	s := &session{
		id:   id,
		out:  make(chan []byte, len(keys)+4096),
		done: make(chan struct{}),
	}
	for _, e := range keys {
		s.out <- h.meshes[e]
	}
	h.sessions[id] = s
	return s
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	if s, ok := h.sessions[id]; ok {
		s.close()
		delete(h.sessions, id)
	}
	h.mu.Unlock()
}

func (h *Hub) view(x, z float64) {
	h.mu.Lock()
	fn := h.onView
	h.mu.Unlock()
	if fn != nil {
		fn(x, z)
	}
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) Meshes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.meshes)
}
