package tracker

import (
	"math"
)

// Vec2 is a two component vector used for positions, sizes and velocities
// in source frame pixel coordinates
type Vec2 struct {
	X float32
	Y float32
}

// Add returns v + o
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v multiplied by s
func (v Vec2) Scale(s float32) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Finite reports if both components are neither NaN nor infinite
func (v Vec2) Finite() bool {
	return finite(v.X) && finite(v.Y)
}

// Positive reports if both components are finite and greater than zero
func (v Vec2) Positive() bool {
	return v.Finite() && v.X > 0 && v.Y > 0
}

// Box is an axis aligned rectangle described by its center point and size
type Box struct {
	Center Vec2
	Size   Vec2
}

// NewBoxFromCorners creates a Box from top-left and bottom-right corners
func NewBoxFromCorners(left, top, right, bottom float32) Box {
	return Box{
		Center: Vec2{X: (left + right) / 2, Y: (top + bottom) / 2},
		Size:   Vec2{X: right - left, Y: bottom - top},
	}
}

// Left returns the x coordinate of the left edge
func (b Box) Left() float32 {
	return b.Center.X - b.Size.X/2
}

// Top returns the y coordinate of the top edge
func (b Box) Top() float32 {
	return b.Center.Y - b.Size.Y/2
}

// Right returns the x coordinate of the right edge
func (b Box) Right() float32 {
	return b.Center.X + b.Size.X/2
}

// Bottom returns the y coordinate of the bottom edge
func (b Box) Bottom() float32 {
	return b.Center.Y + b.Size.Y/2
}

// Area returns the area of the box
func (b Box) Area() float32 {
	return b.Size.X * b.Size.Y
}

// Valid reports if the box has a finite center and a positive size
func (b Box) Valid() bool {
	return b.Center.Finite() && b.Size.Positive()
}

// Union returns the smallest box enclosing both b and o
func (b Box) Union(o Box) Box {
	return NewBoxFromCorners(
		min32(b.Left(), o.Left()),
		min32(b.Top(), o.Top()),
		max32(b.Right(), o.Right()),
		max32(b.Bottom(), o.Bottom()),
	)
}

// fitAspect grows the shorter dimension of size so that width/height equals
// ratio.  A size is never reduced in either dimension.  A ratio <= 0 returns
// size unchanged
func fitAspect(size Vec2, ratio float32) Vec2 {

	if ratio <= 0 || !finite(ratio) || size.Y == 0 {
		return size
	}

	if size.X/size.Y > ratio {
		// too wide, grow height
		return Vec2{X: size.X, Y: size.X / ratio}
	}

	// too tall, grow width
	return Vec2{X: size.Y * ratio, Y: size.Y}
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp32(a, b, t float32) float32 {
	return a + (b-a)*t
}
