package render

import (
	"unsafe"

	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// UniformBlock mirrors the vertex shader's uniform Data block at binding 0.
type UniformBlock struct {
	Model      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

const UniformBlockSize = uint64(unsafe.Sizeof(UniformBlock{}))

func (u *UniformBlock) Bytes() []byte {
	out := make([]byte, UniformBlockSize)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(u)), UniformBlockSize))
	return out
}

// Camera is the per-frame view state handed to Context.Update.
type Camera struct {
	World      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

// DefaultCamera looks at the origin from (3, 3, 3) with a 45 degree
// perspective in Vulkan clip space.
func DefaultCamera(aspect float32) Camera {
	view := mgl32.LookAtV(
		mgl32.Vec3{3, 3, 3},
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, 1},
	)
	return Camera{
		World:      mgl32.Ident4(),
		View:       view,
		Projection: VulkanPerspective(mgl32.DegToRad(45), aspect, 0.1, 100),
	}
}

// VulkanPerspective is mgl32.Perspective with Y flipped for Vulkan clip space.
func VulkanPerspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	proj := mgl32.Perspective(fovy, aspect, near, far)
	proj[5] *= -1
	return proj
}
