package registry

import "testing"

func TestMemoryLifecycle(t *testing.T) {
	m := NewMemory()
	a := m.CreateEntity()
	b := m.CreateEntity()
	if a == b || a == Nil {
		t.Fatalf("expected distinct non-nil handles")
	}
	m.Attach(a, "mesh")
	m.Attach(a, 42)
	if got := m.Records(a); len(got) != 2 || got[0] != "mesh" || got[1] != 42 {
		t.Fatalf("records=%v", got)
	}
	m.DestroyEntity(a)
	m.Attach(a, "late")
	if m.Exists(a) || m.Len() != 1 {
		t.Fatalf("destroyed entity still present")
	}
	back, err := Parse(b.String())
	if err != nil || back != b {
		t.Fatalf("parse round trip: %v %v", back, err)
	}
}
