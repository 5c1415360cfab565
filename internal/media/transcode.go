package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const DefaultQuality = 100

// Transcoder re-encodes images as JPEG, shrinking them so neither side
// exceeds MaxDimension. Zero values mean quality 100 and no resizing.
type Transcoder struct {
	Quality      int
	MaxDimension int
}

func (t Transcoder) Transcode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	img := src
	if w, h, ok := t.fit(src.Bounds()); ok {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		img = dst
	}

	quality := t.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// fit returns the scaled size preserving the aspect ratio, and false when
// no scaling is needed.
func (t Transcoder) fit(b image.Rectangle) (w, h int, ok bool) {
	w, h = b.Dx(), b.Dy()
	longest := max(w, h)
	if t.MaxDimension <= 0 || longest <= t.MaxDimension {
		return w, h, false
	}
	w = max(1, w*t.MaxDimension/longest)
	h = max(1, h*t.MaxDimension/longest)
	return w, h, true
}

// Transcoding wraps src so every loaded payload passes through t.
func Transcoding(src Source, t Transcoder) Source {
	return transcodingSource{Source: src, t: t}
}

type transcodingSource struct {
	Source
	t Transcoder
}

func (s transcodingSource) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.Source.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.t.Transcode(data)
	if err != nil {
		return nil, fmt.Errorf("transcode %s: %w", id, err)
	}
	return out, nil
}
