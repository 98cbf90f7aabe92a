package render

import (
	"unsafe"

	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// Vertex is one corner of a textured triangle as laid out in the vertex buffer.
type Vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
}

const (
	VertexStride    = uint32(unsafe.Sizeof(Vertex{}))
	PositionOffset  = uint32(unsafe.Offsetof(Vertex{}.Position))
	TexCoordOffset  = uint32(unsafe.Offsetof(Vertex{}.UV))
	cubeFaceCorners = 6
)

// VertexBytes returns the raw buffer image of vertices.
func VertexBytes(vertices []Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	size := len(vertices) * int(VertexStride)
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), size))
	return out
}

// Cube returns a unit cube centered on the origin as 36 vertices, each face
// mapped to the full texture.
func Cube() []Vertex {
	type face struct {
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{[4]mgl32.Vec3{{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5}}},     // front
		{[4]mgl32.Vec3{{0.5, -0.5, -0.5}, {-0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5}}}, // back
		{[4]mgl32.Vec3{{-0.5, -0.5, -0.5}, {-0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {-0.5, 0.5, -0.5}}}, // left
		{[4]mgl32.Vec3{{0.5, -0.5, 0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {0.5, 0.5, 0.5}}},     // right
		{[4]mgl32.Vec3{{-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5}}},     // top
		{[4]mgl32.Vec3{{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5}}}, // bottom
	}
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}
	order := [cubeFaceCorners]int{0, 1, 2, 2, 3, 0}

	out := make([]Vertex, 0, len(faces)*cubeFaceCorners)
	for _, f := range faces {
		for _, i := range order {
			out = append(out, Vertex{Position: f.corners[i], UV: uvs[i]})
		}
	}
	return out
}
