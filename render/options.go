package render

import (
	"time"

	"sw3d/logging"
)

const DefaultAcquireTimeout = time.Second

type Options struct {
	// AcquireTimeout bounds each wait on a frame fence or swapchain image.
	AcquireTimeout time.Duration
	// Pipeline overrides the textured pipeline.
	Pipeline Pipeline
	Logger   logging.Logger
}

func (o Options) withDefaults(dev Device) Options {
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = DefaultAcquireTimeout
	}
	if o.Pipeline == nil {
		o.Pipeline = NewTexturedPipeline(dev.GraphicsPipeline())
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}
