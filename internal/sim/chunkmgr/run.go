package chunkmgr

import (
	"context"

	"voxelterrain.ai/internal/voxel/chunk"
)

// Views accepts viewpoints for Run. Use SetView to replace a pending one.
func (m *Manager) Views() chan<- View { return m.views }

// Reseeds accepts replacement providers for Run.
func (m *Manager) Reseeds() chan<- chunk.ElevationProvider { return m.reseeds }

// SetView queues a viewpoint for Run, dropping any older one not yet seen.
func (m *Manager) SetView(v View) {
	sendLatest(m.views, v)
}

// Run owns the manager until ctx ends or Close is called.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return nil
		case v := <-m.views:
			m.LoadChunksAround(v.X, v.Z)
		case p := <-m.reseeds:
			m.Reseed(p)
			if m.hasView {
				m.LoadChunksAround(m.lastView.X, m.lastView.Z)
			}
		case res := <-m.results:
			m.apply(res)
		}
	}
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
