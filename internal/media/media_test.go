package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestDirSource_List(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"a.jpg", "b.JPG", "c.png", "notes.txt", "sub/d.jpg"} {
		writeFile(t, filepath.Join(root, name), []byte(name))
	}

	src, err := NewDirSource(root)
	require.NoError(t, err)
	assert.Equal(t, root, src.Root())

	ids, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "b.JPG"),
		filepath.Join(root, "sub/d.jpg"),
	}, ids)

	src, err = NewDirSource(root, ".png", ".TXT")
	require.NoError(t, err)
	ids, err = src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "c.png"),
		filepath.Join(root, "notes.txt"),
	}, ids)
}

func TestDirSource_Load(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"), []byte("payload"))
	src, err := NewDirSource(root)
	require.NoError(t, err)

	data, err := src.Load(context.Background(), filepath.Join(root, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = src.Load(context.Background(), filepath.Join(root, "missing.jpg"))
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Load(ctx, filepath.Join(root, "a.jpg"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = src.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirSource_MissingRoot(t *testing.T) {
	t.Parallel()

	src, err := NewDirSource(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	_, err = src.List(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	data := encodePNG(t, testImage(40, 30))
	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 40, Height: 30, Bytes: len(data)}, info)
	assert.Contains(t, info.String(), "png 40x30")

	info, err = Probe(encodeJPEG(t, testImage(16, 8)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)

	_, err = Probe([]byte("not an image"))
	assert.Error(t, err)
}

func TestTranscoder_Resize(t *testing.T) {
	t.Parallel()

	out, err := Transcoder{MaxDimension: 50}.Transcode(encodePNG(t, testImage(200, 100)))
	require.NoError(t, err)

	info, err := Probe(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, 50, info.Width)
	assert.Equal(t, 25, info.Height)
}

func TestTranscoder_KeepsSmallImages(t *testing.T) {
	t.Parallel()

	out, err := Transcoder{MaxDimension: 500, Quality: 80}.Transcode(encodePNG(t, testImage(64, 48)))
	require.NoError(t, err)

	info, err := Probe(out)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)

	_, err = Transcoder{}.Transcode([]byte("garbage"))
	assert.Error(t, err)
}

func TestTranscoder_Fit(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		max, w, h    int
		wantW, wantH int
		wantScaled   bool
	}{
		{max: 0, w: 100, h: 100, wantW: 100, wantH: 100},
		{max: 100, w: 100, h: 40, wantW: 100, wantH: 40},
		{max: 10, w: 100, h: 40, wantW: 10, wantH: 4, wantScaled: true},
		{max: 10, w: 1000, h: 5, wantW: 10, wantH: 1, wantScaled: true},
	} {
		w, h, ok := Transcoder{MaxDimension: tc.max}.fit(image.Rect(0, 0, tc.w, tc.h))
		assert.Equal(t, tc.wantScaled, ok)
		assert.Equal(t, tc.wantW, w)
		assert.Equal(t, tc.wantH, h)
	}
}

func TestTranscoding(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), encodePNG(t, testImage(80, 80)))
	writeFile(t, filepath.Join(root, "b.png"), []byte("broken"))
	dir, err := NewDirSource(root, "png")
	require.NoError(t, err)

	src := Transcoding(dir, Transcoder{MaxDimension: 20})
	ids, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)

	data, err := src.Load(context.Background(), ids[0])
	require.NoError(t, err)
	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "jpeg", Width: 20, Height: 20, Bytes: len(data)}, info)

	_, err = src.Load(context.Background(), ids[1])
	assert.ErrorContains(t, err, "transcode")
}
