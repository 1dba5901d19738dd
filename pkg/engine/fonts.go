package engine

import (
	"bytes"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

// Fonts bundles the two text sources used across the UI panels.
type Fonts struct {
	Regular *text.GoTextFaceSource
	Mono    *text.GoTextFaceSource
}

func LoadFonts() *Fonts {
	r, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	m, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))
	return &Fonts{Regular: r, Mono: m}
}

func (f *Fonts) face(size float64) *text.GoTextFace {
	return &text.GoTextFace{Source: f.Regular, Size: size}
}

func (f *Fonts) mono(size float64) *text.GoTextFace {
	return &text.GoTextFace{Source: f.Mono, Size: size}
}
