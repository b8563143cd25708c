package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, raw []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func rgb(img image.Image, x, y int) (uint32, uint32, uint32) {
	r, g, b, _ := img.At(x, y).RGBA()
	return r >> 8, g >> 8, b >> 8
}

var blue = color.RGBA{B: 255, A: 255}

func TestComposeWithoutReachableLogo(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	sources := []LogoSource{
		FileLogo{Path: filepath.Join(t.TempDir(), "missing.png")},
		NewURLLogo(dead.URL+"/logo.png", time.Second),
	}

	c := NewComposer(4, time.Minute, zaptest.NewLogger(t))
	out, err := c.Compose(context.Background(), solidPNG(t, 200, 100, blue), sources)
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Equal(t, 210, img.Bounds().Dx())
	assert.Equal(t, 110, img.Bounds().Dy())

	r, g, b := rgb(img, 1, 1)
	assert.Greater(t, r, uint32(240))
	assert.Greater(t, g, uint32(240))
	assert.Greater(t, b, uint32(240))

	// правый верхний угол снимка не тронут
	r, _, b = rgb(img, 190, 20)
	assert.Less(t, r, uint32(40))
	assert.Greater(t, b, uint32(220))
}

func TestComposePlacesLogoTopRight(t *testing.T) {
	dir := t.TempDir()
	logoPath := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(logoPath, solidPNG(t, 40, 20, color.RGBA{R: 255, A: 255}), 0o644))

	c := NewComposer(4, time.Minute, zaptest.NewLogger(t))
	out, err := c.Compose(context.Background(), solidPNG(t, 200, 100, blue), []LogoSource{FileLogo{Path: logoPath}})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	require.Equal(t, image.Rect(0, 0, 210, 110), img.Bounds())

	rect := LogoRect(40, 20, 5, 200, 100)
	assert.Equal(t, image.Rect(162, 8, 202, 28), rect)

	center := image.Pt((rect.Min.X+rect.Max.X)/2, (rect.Min.Y+rect.Max.Y)/2)
	r, g, b := rgb(img, center.X, center.Y)
	assert.Greater(t, r, uint32(200))
	assert.Less(t, g, uint32(60))
	assert.Less(t, b, uint32(60))

	// левая половина снимка остаётся синей
	r, _, b = rgb(img, 40, 60)
	assert.Less(t, r, uint32(40))
	assert.Greater(t, b, uint32(220))
}

func TestLogoRectFitsBounds(t *testing.T) {
	// широкий логотип упирается в 25% ширины
	r := LogoRect(1000, 100, 50, 1000, 1000)
	assert.Equal(t, 250, r.Dx())
	assert.Equal(t, 25, r.Dy())
	assert.Equal(t, 50+1000-25, r.Max.X)
	assert.Equal(t, 50+25, r.Min.Y)

	// высокий логотип упирается в 20% высоты
	r = LogoRect(100, 1000, 0, 1000, 500)
	assert.Equal(t, 100, r.Dy())
	assert.Equal(t, 10, r.Dx())
}

type countingSource struct {
	key   string
	data  []byte
	loads int
}

func (s *countingSource) Key() string { return s.key }

func (s *countingSource) Load(context.Context) ([]byte, error) {
	s.loads++
	if s.data == nil {
		return nil, errors.New("unreachable")
	}
	return s.data, nil
}

func TestComposeUsesFirstWorkingSourceAndCachesIt(t *testing.T) {
	broken := &countingSource{key: "broken"}
	notImage := &countingSource{key: "text", data: []byte("hello")}
	good := &countingSource{key: "good", data: solidPNG(t, 10, 10, color.Black)}
	never := &countingSource{key: "never", data: solidPNG(t, 10, 10, color.White)}
	sources := []LogoSource{broken, notImage, good, never}

	c := NewComposer(4, time.Minute, zaptest.NewLogger(t))
	photo := solidPNG(t, 100, 100, blue)
	for i := 0; i < 2; i++ {
		_, err := c.Compose(context.Background(), photo, sources)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, broken.loads)
	assert.Equal(t, 2, notImage.loads)
	assert.Equal(t, 1, good.loads)
	assert.Equal(t, 0, never.loads)
}

func TestComposeOrOriginalFallsBack(t *testing.T) {
	c := NewComposer(4, time.Minute, zaptest.NewLogger(t))
	orig := []byte("not an image at all")

	out, warning := c.ComposeOrOriginal(context.Background(), orig, nil)
	assert.Equal(t, orig, out)
	assert.NotEmpty(t, warning)

	_, err := c.Compose(context.Background(), orig, nil)
	assert.ErrorIs(t, err, ErrCompose)

	out, warning = c.ComposeOrOriginal(context.Background(), solidPNG(t, 20, 20, blue), nil)
	assert.Empty(t, warning)
	assert.Equal(t, 22, decodeJPEG(t, out).Bounds().Dx())
}

func TestURLLogo(t *testing.T) {
	logo := solidPNG(t, 4, 4, color.Black)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logo.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(logo)
	}))
	defer srv.Close()

	got, err := NewURLLogo(srv.URL+"/logo.png", time.Second).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, logo, got)

	_, err = NewURLLogo(srv.URL+"/other.png", time.Second).Load(context.Background())
	assert.Error(t, err)
}

func TestParseSourcesLocalFirst(t *testing.T) {
	got := ParseSources([]string{"https://cdn/logo.png", " assets/logo.png ", "", "http://x/l.png", "/abs/logo.png"}, time.Second)
	keys := make([]string, 0, len(got))
	for _, s := range got {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []string{
		"file:assets/logo.png",
		"file:/abs/logo.png",
		"url:https://cdn/logo.png",
		"url:http://x/l.png",
	}, keys)
}

func TestRoundedRectMask(t *testing.T) {
	m := roundedRect{r: image.Rect(0, 0, 40, 20), radius: 8}
	_, _, _, a := m.At(0, 0).RGBA()
	assert.Zero(t, a, "corner is cut")
	_, _, _, a = m.At(20, 10).RGBA()
	assert.Equal(t, uint32(0xffff), a)
	_, _, _, a = m.At(0, 10).RGBA()
	assert.Equal(t, uint32(0xffff), a, "edge midpoint is filled")
	_, _, _, a = m.At(40, 10).RGBA()
	assert.Zero(t, a, "outside bounds")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "screened_beach.jpg", FileName("beach.png"))
	assert.Equal(t, "screened_img.tar.jpg", FileName("img.tar.gz"))
	assert.Equal(t, "screened_photo.jpg", FileName(""))
	assert.Equal(t, "screened_a.jpg", FileName("dir/a.jpeg"))
}
