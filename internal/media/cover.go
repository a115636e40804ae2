package media

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Cover art limits accepted by the host dashboard.
const (
	DefaultCoverMaxEdge = 3000
	DefaultCoverMinEdge = 1400
)

// CoverResult describes a normalized cover.
type CoverResult struct {
	Path    string
	Width   int
	Height  int
	Changed bool
}

// NormalizeCover center-crops the image at path to a square and scales it
// into [minEdge, maxEdge]. A PNG that already fits is returned unchanged;
// anything else is written next to the source as "<name>.cover.png".
func NormalizeCover(path string, minEdge, maxEdge int) (CoverResult, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultCoverMaxEdge
	}
	if minEdge <= 0 || minEdge > maxEdge {
		minEdge = min(DefaultCoverMinEdge, maxEdge)
	}
	src, err := decodeImage(path)
	if err != nil {
		return CoverResult{}, err
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return CoverResult{}, fmt.Errorf("cover %s has no pixels", filepath.Base(path))
	}

	side := min(w, h)
	target := min(max(side, minEdge), maxEdge)
	isPNG := strings.EqualFold(filepath.Ext(path), ".png")
	if w == h && side == target && isPNG {
		return CoverResult{Path: path, Width: w, Height: h}, nil
	}

	crop := image.Rect(0, 0, side, side).Add(image.Pt(bounds.Min.X+(w-side)/2, bounds.Min.Y+(h-side)/2))
	dst := image.NewRGBA(image.Rect(0, 0, target, target))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)

	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".cover.png"
	file, err := os.Create(out)
	if err != nil {
		return CoverResult{}, fmt.Errorf("create cover: %w", err)
	}
	if err := png.Encode(file, dst); err != nil {
		file.Close()
		_ = os.Remove(out)
		return CoverResult{}, fmt.Errorf("encode cover: %w", err)
	}
	if err := file.Close(); err != nil {
		return CoverResult{}, fmt.Errorf("close cover: %w", err)
	}
	return CoverResult{Path: out, Width: target, Height: target, Changed: true}, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cover: %w", err)
	}
	defer f.Close()
	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	default:
		img, _, err = image.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}
	return img, nil
}
