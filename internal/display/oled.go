// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"log"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/compass_level/internal/orientation"
)

const (
	oledWidth  = 128
	oledHeight = 64

	roseCX     = 31
	roseCY     = 32
	roseRadius = 29
	needleLen  = 24
	needleTail = 10
)

// Drawer is the part of the SSD1306 driver the OLED sink draws through.
type Drawer interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Bounds() image.Rectangle
}

// OLED shows a compass rose on the left half of a 128x64 SSD1306 and the
// numeric heading, roll and pitch on the right half.
type OLED struct {
	dev Drawer
}

// NewOLED draws on dev.
func NewOLED(dev Drawer) *OLED {
	return &OLED{dev: dev}
}

// OpenOLED initializes an SSD1306 on the given I2C bus and shows the
// splash screen. The returned closer releases the bus.
func OpenOLED(busName string) (*OLED, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("display: periph host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("display: failed to open I2C bus %q: %w", busName, err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("display: failed to initialize SSD1306: %w", err)
	}
	log.Printf("display: SSD1306 initialized on bus %q", busName)

	o := NewOLED(dev)
	if err := o.Splash(); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return o, bus, nil
}

func (o *OLED) Show(s orientation.State) error {
	return o.dev.Draw(o.dev.Bounds(), Render(s), image.Point{})
}

// Splash shows the start-up screen.
func (o *OLED) Splash() error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	d := newTextDrawer(img)
	drawText(d, 22, 26, "Compass &")
	drawText(d, 18, 43, "Digital Level")
	return o.dev.Draw(o.dev.Bounds(), img, image.Point{})
}

// Render draws a state into a fresh 1-bit frame. The needle's long end
// points to magnetic north, that is it is rotated by -heading from the
// top of the screen.
func Render(s orientation.State) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))

	drawCircle(img, roseCX, roseCY, roseRadius)
	// fixed "N" tick at the top marks the device's forward direction
	drawLine(img, roseCX, roseCY-roseRadius, roseCX, roseCY-roseRadius+3)

	d := newTextDrawer(img)
	if s.HeadingValid {
		a := -s.HeadingDeg * math.Pi / 180
		sin, cos := math.Sin(a), math.Cos(a)
		tipX := roseCX + int(math.Round(needleLen*sin))
		tipY := roseCY - int(math.Round(needleLen*cos))
		tailX := roseCX - int(math.Round(needleTail*sin))
		tailY := roseCY + int(math.Round(needleTail*cos))
		drawLine(img, tailX, tailY, tipX, tipY)
		fillRect(img, tipX-1, tipY-1, tipX+1, tipY+1)
		drawText(d, 68, 13, fmt.Sprintf("H:%5.1f", s.HeadingDeg))
	} else {
		drawText(d, roseCX-3, roseCY+4, "?")
		drawText(d, 68, 13, "H:  ---")
	}
	drawText(d, 68, 26, fmt.Sprintf("R:%6.1f", s.RollDeg))
	drawText(d, 68, 39, fmt.Sprintf("P:%6.1f", s.PitchDeg))
	drawText(d, 68, 52, s.Accuracy.String())
	return img
}

func newTextDrawer(dst draw.Image) *font.Drawer {
	return &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}

func drawText(d *font.Drawer, x, y int, s string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func setPixel(img *image1bit.VerticalLSB, x, y int) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetBit(x, y, image1bit.On)
	}
}

// drawLine is Bresenham's line algorithm.
func drawLine(img *image1bit.VerticalLSB, x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		setPixel(img, x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// drawCircle is the midpoint circle algorithm.
func drawCircle(img *image1bit.VerticalLSB, cx, cy, r int) {
	x, y, e := r, 0, 1-r
	for x >= y {
		for _, p := range [][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}} {
			setPixel(img, cx+p[0], cy+p[1])
		}
		y++
		if e < 0 {
			e += 2*y + 1
		} else {
			x--
			e += 2*(y-x) + 1
		}
	}
}

func fillRect(img *image1bit.VerticalLSB, x0, y0, x1, y1 int) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			setPixel(img, x, y)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
