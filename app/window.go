package app

import (
	"fmt"

	"github.com/vulkan-go/glfw/v3.3/glfw"
)

// Surface is what the frame loop needs from a window.
type Surface interface {
	ShouldClose() bool
	RequestClose()
	PollEvents()
	FramebufferSize() (int, int)
	// SetKeyCallback registers fn for key presses.
	SetKeyCallback(fn func(key glfw.Key))
	// SetResizeCallback registers fn for framebuffer size changes.
	SetResizeCallback(fn func(width, height int))
	Destroy()
}

var _ Surface = (*Window)(nil)

// Window is a glfw window without a client API, ready for a Vulkan surface.
type Window struct {
	w *glfw.Window
}

// NewWindow initializes glfw and opens a window. It returns once the
// framebuffer has a non-zero size. Must be called on the main thread.
func NewWindow(width, height int, title string) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("init glfw: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	for {
		fw, fh := w.GetFramebufferSize()
		if fw > 0 && fh > 0 {
			break
		}
		glfw.WaitEventsTimeout(0.01)
	}
	return &Window{w: w}, nil
}

// Handle is the underlying glfw window, used to create the Vulkan surface.
func (w *Window) Handle() *glfw.Window { return w.w }

func (w *Window) ShouldClose() bool { return w.w.ShouldClose() }

func (w *Window) RequestClose() { w.w.SetShouldClose(true) }

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) FramebufferSize() (int, int) { return w.w.GetFramebufferSize() }

func (w *Window) SetKeyCallback(fn func(key glfw.Key)) {
	w.w.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Press {
			fn(key)
		}
	})
}

func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.w.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		fn(width, height)
	})
}

// Destroy closes the window and terminates glfw.
func (w *Window) Destroy() {
	if w.w == nil {
		return
	}
	w.w.Destroy()
	w.w = nil
	glfw.Terminate()
}
