package main

import (
	"flag"
	"log"
	"runtime"
	"time"

	"github.com/vulkan-go/glfw/v3.3/glfw"

	"sw3d/app"
	"sw3d/render"
)

func init() {
	// GLFW/Vulkan require the main thread.
	runtime.LockOSThread()
}

// spinningCube draws one textured cube turning about Z.
type spinningCube struct {
	texture string
	speed   float32 // degrees per second
	cube    *render.Mesh
	paused  bool
}

func (s *spinningCube) Start(a *app.Application) error {
	cube, err := a.Renderer().NewMesh(render.Cube(), s.texture)
	if err != nil {
		return err
	}
	cube.ComposeRotation = true
	s.cube = cube
	return nil
}

func (s *spinningCube) Update(a *app.Application, dt time.Duration) {
	a.Camera = render.DefaultCamera(a.Aspect())
	if s.paused {
		return
	}
	s.cube.Transform.RotateZ(s.speed * float32(dt.Seconds()))
}

func (s *spinningCube) Draw(r app.Renderer) {
	r.Draw(s.cube)
}

func (s *spinningCube) KeyPressed(a *app.Application, key glfw.Key) {
	if key == glfw.KeySpace {
		s.paused = !s.paused
		a.Logger().Infof("paused: %v", s.paused)
	}
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	texture := flag.String("texture", "", "cube texture (overrides config)")
	frames := flag.Uint64("frames", 0, "exit after this many frames (0 runs until closed)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *texture != "" {
		cfg.TexturePath = *texture
	}
	if *frames > 0 {
		cfg.MaxFrames = *frames
	}
	if *debug {
		cfg.Debug = true
	}

	a, err := app.Open(cfg)
	if err != nil {
		log.Fatalf("init vulkan: %v", err)
	}

	scene := &spinningCube{texture: cfg.TexturePath, speed: 90}
	a.Logger().Infof("Entering main loop")
	runErr := a.Run(scene)
	if scene.cube != nil {
		scene.cube.Release()
	}
	if err := a.Close(); err != nil {
		a.Logger().Warnf("shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("run: %v", runErr)
	}
}
