package render

import (
	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// Transform is the placement of one renderable object.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Mat4
	Scale    mgl32.Mat4
}

func NewTransform() Transform {
	return Transform{
		Rotation: mgl32.Ident4(),
		Scale:    mgl32.Ident4(),
	}
}

func (t *Transform) Translate(x, y, z float32) {
	t.Position = t.Position.Add(mgl32.Vec3{x, y, z})
}

// SetScale replaces the scale with a uniform factor.
func (t *Transform) SetScale(factor float32) {
	t.Scale = mgl32.Scale3D(factor, factor, factor)
}

// Rotate composes a rotation of angle degrees about axis onto the current
// rotation. A zero axis leaves the rotation unchanged.
func (t *Transform) Rotate(angle float32, axis mgl32.Vec3) {
	if axis.Len() == 0 {
		return
	}
	t.apply(mgl32.HomogRotate3D(mgl32.DegToRad(angle), axis.Normalize()))
}

func (t *Transform) RotateX(angle float32) {
	t.apply(mgl32.HomogRotate3DX(mgl32.DegToRad(angle)))
}

func (t *Transform) RotateY(angle float32) {
	t.apply(mgl32.HomogRotate3DY(mgl32.DegToRad(angle)))
}

func (t *Transform) RotateZ(angle float32) {
	t.apply(mgl32.HomogRotate3DZ(mgl32.DegToRad(angle)))
}

func (t *Transform) apply(r mgl32.Mat4) {
	t.Rotation = r.Mul4(t.Rotation)
}

// TranslationMatrix is derived from Position on every call.
func (t *Transform) TranslationMatrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
}
