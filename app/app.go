// Package app drives the render loop: it owns the window, the frame clock
// and the camera, and hands each frame to a Handler.
package app

import (
	"fmt"
	"time"

	"github.com/vulkan-go/glfw/v3.3/glfw"

	"sw3d/clock"
	"sw3d/logging"
	"sw3d/render"
	"sw3d/render/vk"
)

// Renderer is the part of render.Context the loop and handlers use.
type Renderer interface {
	NewMesh(vertices []render.Vertex, texturePath string) (*render.Mesh, error)
	Draw(mesh *render.Mesh)
	Update(cam render.Camera) error
	RequestSwapchainRecreate()
	Extent() render.Extent
	Close() error
}

var _ Renderer = (*render.Context)(nil)

// Handler receives the application's lifecycle callbacks.
type Handler interface {
	// Start runs once before the first frame.
	Start(app *Application) error
	// Update advances the scene by dt.
	Update(app *Application, dt time.Duration)
	// Draw queues the frame's meshes.
	Draw(r Renderer)
}

// KeyHandler is implemented by handlers that want key presses. Escape is
// handled by the application and not forwarded.
type KeyHandler interface {
	KeyPressed(app *Application, key glfw.Key)
}

const (
	fpsInterval   = time.Second
	minimizedWait = 10 * time.Millisecond
)

type Application struct {
	// Camera is passed to the renderer at the end of every frame.
	Camera render.Camera

	cfg      Config
	log      logging.Logger
	window   Surface
	renderer Renderer
	clock    *clock.Clock
	sleep    func(time.Duration)

	fpsFrames uint64
	fpsSince  time.Duration
}

// New assembles an application from an existing window and renderer.
func New(cfg Config, window Surface, renderer Renderer, log logging.Logger) *Application {
	a := &Application{
		cfg:      cfg,
		log:      logging.OrNop(log),
		window:   window,
		renderer: renderer,
		clock:    clock.New(),
		sleep:    time.Sleep,
	}
	a.Camera = render.DefaultCamera(a.Aspect())
	return a
}

// Open creates the window, the Vulkan device and the render context
// described by cfg. Must be called on the main thread.
func Open(cfg Config) (*Application, error) {
	log := logging.New(cfg.LogPrefix, cfg.Debug)

	window, err := NewWindow(cfg.Width, cfg.Height, cfg.Title)
	if err != nil {
		return nil, err
	}
	dev, err := vk.NewDevice(window.Handle(), cfg.GPU, log)
	if err != nil {
		window.Destroy()
		return nil, err
	}
	ctx := render.NewContext(dev, render.Options{
		AcquireTimeout: cfg.AcquireTimeout,
		Logger:         log,
	})
	log.Infof("window %dx%d, %d swapchain images, %d frames in flight", cfg.Width, cfg.Height, dev.ImageCount(), dev.FramesInFlight())
	return New(cfg, window, ctx, log), nil
}

func (a *Application) Config() Config         { return a.cfg }
func (a *Application) Logger() logging.Logger { return a.log }
func (a *Application) Renderer() Renderer     { return a.renderer }
func (a *Application) Clock() *clock.Clock    { return a.clock }

// Aspect is the framebuffer width over height, or 1 while minimized.
func (a *Application) Aspect() float32 {
	w, h := a.window.FramebufferSize()
	if w <= 0 || h <= 0 {
		return 1
	}
	return float32(w) / float32(h)
}

// Quit asks the loop to stop after the current frame.
func (a *Application) Quit() { a.window.RequestClose() }

// Run starts h and drives frames until the window closes, MaxFrames is
// reached or a frame fails with a non-retryable error.
func (a *Application) Run(h Handler) error {
	if err := h.Start(a); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	keys, _ := h.(KeyHandler)
	a.window.SetKeyCallback(func(key glfw.Key) {
		if key == glfw.KeyEscape {
			a.window.RequestClose()
			return
		}
		if keys != nil {
			keys.KeyPressed(a, key)
		}
	})
	a.window.SetResizeCallback(func(width, height int) {
		a.log.Debugf("framebuffer resized to %dx%d", width, height)
		a.renderer.RequestSwapchainRecreate()
	})

	a.fpsSince = a.clock.Elapsed()
	var frames uint64
	for !a.window.ShouldClose() {
		dt := a.clock.Tick()
		a.window.PollEvents()
		if a.window.ShouldClose() {
			break
		}
		if fw, fh := a.window.FramebufferSize(); fw == 0 || fh == 0 {
			a.sleep(minimizedWait)
			continue
		}

		h.Update(a, dt)
		h.Draw(a.renderer)
		if err := a.renderer.Update(a.Camera); err != nil {
			if !render.IsRetryable(err) {
				return err
			}
			a.log.Debugf("frame skipped: %v", err)
		}

		frames++
		a.reportFPS()
		if a.cfg.MaxFrames > 0 && frames >= a.cfg.MaxFrames {
			break
		}
	}
	return nil
}

func (a *Application) reportFPS() {
	a.fpsFrames++
	now := a.clock.Elapsed()
	window := now - a.fpsSince
	if window < fpsInterval {
		return
	}
	a.log.Debugf("fps %.1f (%d frames in %v)", float64(a.fpsFrames)/window.Seconds(), a.fpsFrames, window.Round(time.Millisecond))
	a.fpsFrames = 0
	a.fpsSince = now
}

// Close releases the renderer, then the window.
func (a *Application) Close() error {
	err := a.renderer.Close()
	a.window.Destroy()
	return err
}
