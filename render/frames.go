package render

// frameRing tracks which in-flight slot records next and the mesh resources
// each slot's submitted work still references.
type frameRing struct {
	current int
	held    [][]*meshResources
}

func newFrameRing(slots int) *frameRing {
	if slots < 1 {
		slots = 1
	}
	return &frameRing{held: make([][]*meshResources, slots)}
}

func (f *frameRing) slot() int { return f.current }

func (f *frameRing) advance() {
	f.current = (f.current + 1) % len(f.held)
}

// hold moves the meshes' references to slot until it is retired.
func (f *frameRing) hold(slot int, meshes []*Mesh) {
	for _, m := range meshes {
		if m.res == nil {
			continue
		}
		f.held[slot] = append(f.held[slot], m.res)
		m.res = nil
	}
}

// retire releases what slot held. Only call once the slot's fence signaled.
func (f *frameRing) retire(slot int) {
	for i, r := range f.held[slot] {
		r.release()
		f.held[slot][i] = nil
	}
	f.held[slot] = f.held[slot][:0]
}

func (f *frameRing) retireAll() {
	for slot := range f.held {
		f.retire(slot)
	}
}

func (f *frameRing) holding(slot int) int { return len(f.held[slot]) }
