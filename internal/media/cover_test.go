package media

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if filepath.Ext(path) == ".png" {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, nil)
	}
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestNormalizeCover(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		w, h        int
		min, max    int
		wantSide    int
		wantChanged bool
	}{
		{name: "square png within limits", file: "a.png", w: 40, h: 40, min: 20, max: 60, wantSide: 40},
		{name: "wide crop", file: "b.png", w: 80, h: 40, min: 20, max: 60, wantSide: 40, wantChanged: true},
		{name: "too large", file: "c.png", w: 100, h: 100, min: 20, max: 60, wantSide: 60, wantChanged: true},
		{name: "too small", file: "d.png", w: 10, h: 10, min: 20, max: 60, wantSide: 20, wantChanged: true},
		{name: "jpeg converted", file: "e.jpg", w: 30, h: 30, min: 20, max: 60, wantSide: 30, wantChanged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeImage(t, path, tt.w, tt.h)
			res, err := NormalizeCover(path, tt.min, tt.max)
			if err != nil {
				t.Fatalf("NormalizeCover: %v", err)
			}
			if res.Changed != tt.wantChanged || res.Width != tt.wantSide || res.Height != tt.wantSide {
				t.Fatalf("result = %+v", res)
			}
			if !tt.wantChanged {
				if res.Path != path {
					t.Fatalf("path = %s, want unchanged", res.Path)
				}
				return
			}
			if filepath.Ext(res.Path) != ".png" {
				t.Fatalf("output %s is not png", res.Path)
			}
			f, err := os.Open(res.Path)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer f.Close()
			cfg, err := png.DecodeConfig(f)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cfg.Width != tt.wantSide || cfg.Height != tt.wantSide {
				t.Fatalf("decoded %dx%d", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestNormalizeCoverRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NormalizeCover(path, 0, 0); err == nil {
		t.Fatal("expected decode error")
	}
}
