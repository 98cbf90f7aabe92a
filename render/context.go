package render

import (
	"errors"

	"sw3d/logging"
)

// Context owns the device and the per-frame draw queue. It is not safe for
// concurrent use; drive it from the thread that owns the window.
type Context struct {
	dev      Device
	pipeline Pipeline
	opts     Options
	log      logging.Logger

	queue    []*Mesh
	frames   *frameRing
	recreate bool
	closed   bool
}

func NewContext(dev Device, opts Options) *Context {
	opts = opts.withDefaults(dev)
	return &Context{
		dev:      dev,
		pipeline: opts.Pipeline,
		opts:     opts,
		log:      opts.Logger,
		frames:   newFrameRing(dev.FramesInFlight()),
	}
}

// NewMesh creates a mesh on this context's device.
func (c *Context) NewMesh(vertices []Vertex, texturePath string) (*Mesh, error) {
	m, err := NewMesh(c.dev, vertices, texturePath)
	if err != nil {
		c.log.Warnf("%v", err)
		return nil, err
	}
	c.log.Debugf("mesh %s: %d vertices, texture %s", m.ID, m.VertexCount(), texturePath)
	return m, nil
}

// Draw queues a snapshot of mesh for the next Update. Meshes are drawn in
// queue order.
func (c *Context) Draw(mesh *Mesh) {
	if mesh == nil || mesh.res == nil {
		return
	}
	c.queue = append(c.queue, mesh.Clone())
}

func (c *Context) Pending() int       { return len(c.queue) }
func (c *Context) ImageCount() int    { return c.dev.ImageCount() }
func (c *Context) Extent() Extent     { return c.dev.Extent() }
func (c *Context) Device() Device     { return c.dev }
func (c *Context) Pipeline() Pipeline { return c.pipeline }

// RequestSwapchainRecreate rebuilds the swapchain before the next frame.
func (c *Context) RequestSwapchainRecreate() {
	c.recreate = true
}

// Update renders and presents the queued meshes with cam, then empties the
// queue whether or not the frame succeeded. Failures are *FrameError.
func (c *Context) Update(cam Camera) error {
	queue := c.queue
	defer c.drain()

	if c.closed {
		return &FrameError{Stage: "update", Err: ErrClosed}
	}
	if c.recreate {
		if err := c.rebuild(); err != nil {
			return classify("recreate", err)
		}
	}

	timeout := c.opts.AcquireTimeout
	slot := c.frames.slot()
	if err := c.dev.WaitFrame(slot, timeout); err != nil {
		return c.fail("wait", err)
	}
	c.frames.retire(slot)
	if err := c.dev.PrepareFrame(slot, len(queue)); err != nil {
		return c.fail("prepare", err)
	}

	image, err := c.dev.Acquire(slot, timeout)
	if err != nil {
		return c.fail("acquire", err)
	}

	if err := c.record(slot, image, cam, queue); err != nil {
		// the acquired image is never presented; rebuild the swapchain and
		// its semaphores before the next frame
		c.recreate = true
		return c.fail("record", err)
	}

	if err := c.dev.Submit(slot, image); err != nil {
		c.recreate = true
		return c.fail("submit", err)
	}
	c.frames.hold(slot, queue)
	c.frames.advance()

	if err := c.dev.Present(slot, image); err != nil {
		return c.fail("present", err)
	}
	return nil
}

func (c *Context) record(slot int, image uint32, cam Camera, queue []*Mesh) error {
	rec, err := c.dev.Begin(slot, image)
	if err != nil {
		return err
	}
	frame := &FrameState{
		Slot:   slot,
		Image:  image,
		Camera: cam,
		Extent: c.dev.Extent(),
	}
	c.pipeline.Bind(rec, frame)
	for _, m := range queue {
		if err := c.pipeline.Draw(rec, m, frame); err != nil {
			rec.End()
			return err
		}
	}
	return rec.End()
}

func (c *Context) fail(stage string, err error) error {
	fe := classify(stage, err)
	if errors.Is(err, ErrSwapchainStale) {
		if rerr := c.rebuild(); rerr != nil {
			return classify("recreate", rerr)
		}
	}
	if fe.Retryable {
		c.log.Debugf("%v", fe)
	} else {
		c.log.Errorf("%v", fe)
	}
	return fe
}

func (c *Context) rebuild() error {
	c.log.Infof("recreating swapchain")
	if err := c.dev.RecreateSwapchain(); err != nil {
		c.recreate = true
		return err
	}
	c.recreate = false
	return nil
}

// drain empties the queue. References already handed to a slot were
// cleared by hold, so only unsubmitted snapshots are released here.
func (c *Context) drain() {
	for i, m := range c.queue {
		m.Release()
		c.queue[i] = nil
	}
	c.queue = c.queue[:0]
}

// Close waits for the GPU, releases every mesh reference the context holds
// and destroys the device.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.dev.WaitIdle()
	c.frames.retireAll()
	c.drain()
	c.dev.Destroy()
	return err
}
