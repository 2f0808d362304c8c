package chunkmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"voxelterrain.ai/internal/logic/mathx"
	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/voxel/chunk"
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("chunkmgr: closed")

type loadedChunk struct {
	chunk  *chunk.Chunk
	entity registry.Entity
}

type result struct {
	key     chunk.Key
	epoch   uint64
	seed    int64
	chunk   *chunk.Chunk
	report  chunk.Report
	err     error
	elapsed time.Duration
}

type buildFunc func(ctx context.Context, key chunk.Key, p chunk.ElevationProvider) (*chunk.Chunk, chunk.Report, error)

// Manager streams chunks around a viewpoint.
//
// Map state (loaded, in-flight, epoch) belongs to one owner goroutine: the
// caller of LoadChunksAround, Poll, Flush, Reset and Reseed, or Run. Workers
// only build their own chunk and post it back on a channel. Stats is safe
// from any goroutine.
type Manager struct {
	cfg      Config
	provider chunk.ElevationProvider
	registry Registry
	scene    Scene
	sinks    []EventSink
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	pool   pond.Pool
	build  buildFunc

	results chan result
	views   chan View
	reseeds chan chunk.ElevationProvider

	closeOnce sync.Once
	closed    chan struct{}

	// Owner goroutine only.
	loaded   map[chunk.Key]*loadedChunk
	inflight map[chunk.Key]uint64
	epoch    uint64
	lastView View
	hasView  bool

	started   atomic.Uint64
	loadedN   atomic.Uint64
	unloaded  atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
	resident  atomic.Int64
	pending   atomic.Int64
	epochSeen atomic.Uint64
}

type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithEventSinks(sinks ...EventSink) Option {
	return func(m *Manager) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

func New(cfg Config, provider chunk.ElevationProvider, reg Registry, scene Scene, opts ...Option) *Manager {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())
	side := 2*cfg.ViewDistance + 1
	m := &Manager{
		cfg:      cfg,
		provider: provider,
		registry: reg,
		scene:    scene,
		logger:   log.New(io.Discard, "", 0),
		ctx:      ctx,
		cancel:   cancel,
		pool:     pond.NewPool(cfg.Workers),
		results:  make(chan result, side*side),
		views:    make(chan View, 1),
		reseeds:  make(chan chunk.ElevationProvider, 1),
		closed:   make(chan struct{}),
		loaded:   map[chunk.Key]*loadedChunk{},
		inflight: map[chunk.Key]uint64{},
	}
	m.build = m.buildChunk
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Config() Config { return m.cfg }

// ViewChunk is the chunk containing a world-space viewpoint.
func (m *Manager) ViewChunk(viewX, viewZ float64) chunk.Key {
	s := float64(m.cfg.Dims.Size)
	return chunk.Key{CX: mathx.FloorToInt(viewX / s), CZ: mathx.FloorToInt(viewZ / s)}
}

// LoadChunksAround starts generation for every chunk within the view distance
// that is neither loaded nor in flight, then unloads loaded chunks that fell
// out of range. It never waits on generation. Returns the number started.
func (m *Manager) LoadChunksAround(viewX, viewZ float64) int {
	m.lastView, m.hasView = View{X: viewX, Z: viewZ}, true
	center := m.ViewChunk(viewX, viewZ)
	d := m.cfg.ViewDistance

	started := 0
	if !m.isClosed() {
		for dx := -d; dx <= d; dx++ {
			for dz := -d; dz <= d; dz++ {
				key := chunk.Key{CX: center.CX + dx, CZ: center.CZ + dz}
				if _, ok := m.loaded[key]; ok {
					continue
				}
				if _, ok := m.inflight[key]; ok {
					continue
				}
				m.start(key)
				started++
			}
		}
	}

	var far []chunk.Key
	for key := range m.loaded {
		if chebyshev(key, center) > d {
			far = append(far, key)
		}
	}
	sortKeys(far)
	for _, key := range far {
		m.unload(key)
	}
	return started
}

// seeded is implemented by providers that can report their world seed.
type seeded interface {
	Seed() int64
}

func (m *Manager) start(key chunk.Key) {
	epoch := m.epoch
	provider := m.provider
	m.inflight[key] = epoch
	m.pending.Store(int64(len(m.inflight)))
	m.started.Add(1)
	m.pool.Submit(func() { m.generate(key, epoch, provider) })
}

// generate runs on a pool worker.
func (m *Manager) generate(key chunk.Key, epoch uint64, provider chunk.ElevationProvider) {
	t0 := time.Now()
	res := result{key: key, epoch: epoch}
	if sp, ok := provider.(seeded); ok {
		res.seed = sp.Seed()
	}
	if err := m.ctx.Err(); err != nil {
		res.err = err
		m.post(res)
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.chunk = nil
				res.err = fmt.Errorf("chunk %d,%d: generation panic: %v", key.CX, key.CZ, r)
			}
		}()
		res.chunk, res.report, res.err = m.build(m.ctx, key, provider)
	}()
	res.elapsed = time.Since(t0)
	m.post(res)
}

func (m *Manager) post(res result) {
	select {
	case m.results <- res:
	case <-m.closed:
		if res.chunk != nil {
			res.chunk.Dispose()
		}
	}
}

func (m *Manager) buildChunk(ctx context.Context, key chunk.Key, p chunk.ElevationProvider) (*chunk.Chunk, chunk.Report, error) {
	c := chunk.New(key, m.cfg.Dims,
		chunk.WithLogger(m.logger),
		chunk.WithFallbackSeed(m.cfg.FallbackSeed),
		chunk.WithPaletteTop(m.cfg.PaletteTop),
	)
	columns := pond.NewPool(m.cfg.ColumnWorkers)
	defer columns.StopAndWait()

	rep, err := c.GenerateTerrain(ctx, p, columns)
	if err != nil {
		c.Dispose()
		return nil, rep, fmt.Errorf("chunk %d,%d: %w", key.CX, key.CZ, err)
	}
	c.BuildMesh()
	return c, rep, nil
}

// Poll applies every completion already posted and returns how many.
func (m *Manager) Poll() int {
	n := 0
	for {
		select {
		case res := <-m.results:
			m.apply(res)
			n++
		default:
			return n
		}
	}
}

// Flush applies completions until nothing is in flight. It returns
// ErrClosed once the manager is closed.
func (m *Manager) Flush(ctx context.Context) error {
	for len(m.inflight) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return ErrClosed
		case res := <-m.results:
			m.apply(res)
		}
	}
	return nil
}

func (m *Manager) apply(res result) {
	delete(m.inflight, res.key)
	m.pending.Store(int64(len(m.inflight)))

	ev := Event{
		Time:       time.Now().UTC(),
		CX:         res.key.CX,
		CZ:         res.key.CZ,
		Epoch:      res.epoch,
		Seed:       res.seed,
		DurationMS: float64(res.elapsed.Microseconds()) / 1000,
	}

	switch {
	case res.epoch != m.epoch:
		if res.chunk != nil {
			res.chunk.Dispose()
		}
		m.discarded.Add(1)
		ev.Kind = EventDiscarded
		// The stale marker hid this key from LoadChunksAround since the
		// reset, so regenerate it if the view still wants it.
		defer m.restartInView(res.key)
	case res.err != nil:
		m.failed.Add(1)
		m.logger.Printf("chunk %d,%d failed after %s: %v", res.key.CX, res.key.CZ, res.elapsed, res.err)
		ev.Kind = EventFailed
		ev.Error = res.err.Error()
	case m.loaded[res.key] != nil:
		res.chunk.Dispose()
		m.discarded.Add(1)
		ev.Kind = EventDiscarded
	default:
		c := res.chunk
		msh, offset := c.Mesh(), c.Offset()
		e := m.registry.CreateEntity()
		m.registry.Attach(e, TransformMesh{Mesh: msh, Offset: offset})
		m.registry.Attach(e, VoxelData{Grid: c.Grid(), CX: res.key.CX, CZ: res.key.CZ})
		m.scene.AddMesh(e, msh, offset)
		m.loaded[res.key] = &loadedChunk{chunk: c, entity: e}
		m.resident.Store(int64(len(m.loaded)))
		m.loadedN.Add(1)

		ev.Kind = EventLoaded
		ev.Entity = e.String()
		ev.Columns = res.report.Columns
		ev.FallbackColumns = res.report.FallbackColumns
		ev.Solid = res.report.Solid
		ev.Quads = msh.Quads()
		ev.Triangles = msh.Triangles()
		ev.Digest = fmt.Sprintf("%016x", c.Digest())
		if res.report.FallbackColumns > 0 {
			m.logger.Printf("chunk %d,%d loaded with %d fallback columns", res.key.CX, res.key.CZ, res.report.FallbackColumns)
		}
	}
	m.emit(ev)
}

func (m *Manager) restartInView(key chunk.Key) {
	if !m.hasView || m.isClosed() {
		return
	}
	if chebyshev(key, m.ViewChunk(m.lastView.X, m.lastView.Z)) > m.cfg.ViewDistance {
		return
	}
	if _, ok := m.loaded[key]; ok {
		return
	}
	if _, ok := m.inflight[key]; ok {
		return
	}
	m.start(key)
}

// unload detaches from the scene, destroys the entity, then frees the mesh.
func (m *Manager) unload(key chunk.Key) {
	lc, ok := m.loaded[key]
	if !ok {
		return
	}
	m.scene.RemoveMesh(lc.entity)
	m.registry.DestroyEntity(lc.entity)
	lc.chunk.Dispose()
	delete(m.loaded, key)
	m.resident.Store(int64(len(m.loaded)))
	m.unloaded.Add(1)
	m.emit(Event{
		Time:   time.Now().UTC(),
		Kind:   EventUnloaded,
		CX:     key.CX,
		CZ:     key.CZ,
		Epoch:  m.epoch,
		Entity: lc.entity.String(),
	})
}

// Reset unloads everything. Generations already in flight keep their
// markers and are discarded when they land.
func (m *Manager) Reset() {
	keys := m.Loaded()
	for _, key := range keys {
		m.unload(key)
	}
	m.epoch++
	m.epochSeen.Store(m.epoch)
	m.logger.Printf("reset: unloaded %d chunks, %d in flight, epoch %d", len(keys), len(m.inflight), m.epoch)
}

// Reseed swaps the elevation provider and resets.
func (m *Manager) Reseed(p chunk.ElevationProvider) {
	m.provider = p
	m.Reset()
}

func (m *Manager) emit(ev Event) {
	for _, s := range m.sinks {
		if err := s.WriteChunkEvent(ev); err != nil {
			m.logger.Printf("event sink: %v", err)
		}
	}
}

func (m *Manager) Loaded() []chunk.Key {
	keys := make([]chunk.Key, 0, len(m.loaded))
	for k := range m.loaded {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func (m *Manager) IsLoaded(key chunk.Key) bool {
	_, ok := m.loaded[key]
	return ok
}

func (m *Manager) InFlight() []chunk.Key {
	keys := make([]chunk.Key, 0, len(m.inflight))
	for k := range m.inflight {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func (m *Manager) Stats() Stats {
	return Stats{
		Started:   m.started.Load(),
		Loaded:    m.loadedN.Load(),
		Unloaded:  m.unloaded.Load(),
		Failed:    m.failed.Load(),
		Discarded: m.discarded.Load(),
		Resident:  int(m.resident.Load()),
		InFlight:  int(m.pending.Load()),
		Epoch:     m.epochSeen.Load(),
	}
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// Close stops the worker pool. Completions that were never applied are
// disposed. Loaded chunks stay attached; call Reset first to detach them.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.cancel()
		m.pool.StopAndWait()
		for {
			select {
			case res := <-m.results:
				if res.chunk != nil {
					res.chunk.Dispose()
				}
			default:
				return
			}
		}
	})
}

func chebyshev(a, b chunk.Key) int {
	dx := mathx.AbsInt(a.CX - b.CX)
	dz := mathx.AbsInt(a.CZ - b.CZ)
	if dx > dz {
		return dx
	}
	return dz
}

func sortKeys(keys []chunk.Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
}
