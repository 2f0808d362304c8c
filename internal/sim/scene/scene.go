// Package scene holds drawable chunk meshes keyed by entity.
package scene

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelterrain.ai/internal/sim/registry"
	"voxelterrain.ai/internal/voxel/mesh"
)

// Sink is anything that accepts meshes. chunkmgr.Scene has the same shape.
type Sink interface {
	AddMesh(e registry.Entity, m *mesh.Mesh, offset mgl32.Vec3)
	RemoveMesh(e registry.Entity)
}

type Node struct {
	Entity registry.Entity
	Mesh   *mesh.Mesh
	Offset mgl32.Vec3
}

// Graph is a flat in-process scene.
type Graph struct {
	mu    sync.RWMutex
	nodes map[registry.Entity]Node
}

func NewGraph() *Graph {
	return &Graph{nodes: map[registry.Entity]Node{}}
}

func (g *Graph) AddMesh(e registry.Entity, m *mesh.Mesh, offset mgl32.Vec3) {
	g.mu.Lock()
	g.nodes[e] = Node{Entity: e, Mesh: m, Offset: offset}
	g.mu.Unlock()
}

func (g *Graph) RemoveMesh(e registry.Entity) {
	g.mu.Lock()
	delete(g.nodes, e)
	g.mu.Unlock()
}

func (g *Graph) Node(e registry.Entity) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[e]
	return n, ok
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Nodes returns a snapshot ordered by offset (x, then z).
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset.X() != out[j].Offset.X() {
			return out[i].Offset.X() < out[j].Offset.X()
		}
		return out[i].Offset.Z() < out[j].Offset.Z()
	})
	return out
}

// TriangleCount sums triangles over every node.
func (g *Graph) TriangleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, node := range g.nodes {
		n += node.Mesh.Triangles()
	}
	return n
}

// Fanout forwards every call to each sink in order.
type Fanout []Sink

func (f Fanout) AddMesh(e registry.Entity, m *mesh.Mesh, offset mgl32.Vec3) {
	for _, s := range f {
		s.AddMesh(e, m, offset)
	}
}

func (f Fanout) RemoveMesh(e registry.Entity) {
	for _, s := range f {
		s.RemoveMesh(e)
	}
}
