package vk

import (
	"errors"
	"fmt"

	"github.com/vulkan-go/vulkan"

	"sw3d/render"
)

// resultError turns a failed vulkan.Result into an error that matches the
// render sentinels under errors.Is.
func resultError(op string, res vulkan.Result) error {
	switch res {
	case vulkan.Success:
		return nil
	case vulkan.ErrorOutOfDate, vulkan.Suboptimal:
		return fmt.Errorf("%s: %w (%v)", op, render.ErrSwapchainStale, vulkan.Error(res))
	case vulkan.ErrorDeviceLost, vulkan.ErrorSurfaceLost:
		return fmt.Errorf("%s: %w (%v)", op, render.ErrDeviceLost, vulkan.Error(res))
	case vulkan.Timeout, vulkan.NotReady:
		return fmt.Errorf("%s: %w", op, render.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, vulkan.Error(res))
}

func initError(stage string, err error) error {
	return &render.InitError{Stage: stage, Err: err}
}

// errMinimized is returned while the window has no drawable area. It is
// retryable: the swapchain is rebuilt once the window is restored.
var errMinimized = fmt.Errorf("window minimized: %w", render.ErrSwapchainStale)

// heldImageError reports a failure that happened after an image was
// acquired. The image and the slot's acquire semaphore stay signaled, so
// anything short of device loss is marked stale to force a rebuild of the
// swapchain and its semaphores.
func heldImageError(image uint32, err error) error {
	if errors.Is(err, render.ErrDeviceLost) || errors.Is(err, render.ErrSwapchainStale) {
		return fmt.Errorf("image %d: %w", image, err)
	}
	return fmt.Errorf("image %d: %w: %w", image, render.ErrSwapchainStale, err)
}
