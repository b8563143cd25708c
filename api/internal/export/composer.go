package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nfnt/resize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"photo-screener/api/internal/imageprep"
)

const (
	// Quality - качество итогового JPEG.
	Quality = 95

	borderRatio  = 0.05
	logoMaxW     = 0.25
	logoMaxH     = 0.20
	paddingRatio = 0.025
	backingPad   = 8
	backingR     = 8
)

// backing - чёрная подложка под логотипом, прозрачность 0.3.
var backing = color.NRGBA{A: 77}

var fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "screener_export_fallbacks_total",
	Help: "Exports that returned the original photo because composing failed.",
})

var ErrCompose = errors.New("compose failed")

// Composer добавляет к снимку белую рамку и логотип.
type Composer struct {
	logos  *expirable.LRU[string, image.Image]
	logger *zap.Logger
}

func NewComposer(cacheSize int, ttl time.Duration, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = 8
	}
	return &Composer{
		logos:  expirable.NewLRU[string, image.Image](cacheSize, nil, ttl),
		logger: logger.Named("export"),
	}
}

// Compose рисует рамку и логотип и кодирует результат в JPEG.
// Если ни один логотип не загрузился, результат будет только с рамкой.
func (c *Composer) Compose(ctx context.Context, photo []byte, sources []LogoSource) ([]byte, error) {
	img, _, err := imageprep.Decode(photo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompose, err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrCompose)
	}
	shorter := min(w, h)
	border := int(math.Floor(float64(shorter) * borderRatio))

	canvas := image.NewRGBA(image.Rect(0, 0, w+2*border, h+2*border))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(border, border, border+w, border+h), img, b.Min, draw.Over)

	if logo := c.firstLogo(ctx, sources); logo != nil {
		drawLogo(canvas, logo, border, w, h)
	}

	return imageprep.EncodeJPEG(canvas, Quality)
}

// ComposeOrOriginal возвращает исходные байты и предупреждение, если собрать картинку не удалось.
func (c *Composer) ComposeOrOriginal(ctx context.Context, photo []byte, sources []LogoSource) ([]byte, string) {
	out, err := c.Compose(ctx, photo, sources)
	if err != nil {
		fallbacksTotal.Inc()
		c.logger.Warn("export fell back to original", zap.Error(err))
		return photo, "Could not process image with border/logo. Downloading original."
	}
	return out, ""
}

func (c *Composer) firstLogo(ctx context.Context, sources []LogoSource) image.Image {
	for _, src := range sources {
		if img, ok := c.logos.Get(src.Key()); ok {
			return img
		}
		raw, err := src.Load(ctx)
		if err != nil {
			c.logger.Debug("logo source failed", zap.String("source", src.Key()), zap.Error(err))
			continue
		}
		img, _, err := imageprep.Decode(raw)
		if err != nil || img.Bounds().Empty() {
			c.logger.Debug("logo is not an image", zap.String("source", src.Key()), zap.Error(err))
			continue
		}
		c.logos.Add(src.Key(), img)
		return img
	}
	return nil
}

// LogoRect - место логотипа на холсте: вписан в 25% ширины и 20% высоты снимка,
// в правом верхнем углу с отступом 2.5% от меньшей стороны.
func LogoRect(logoW, logoH, border, w, h int) image.Rectangle {
	scale := math.Min(float64(w)*logoMaxW/float64(logoW), float64(h)*logoMaxH/float64(logoH))
	lw := max(1, int(math.Round(float64(logoW)*scale)))
	lh := max(1, int(math.Round(float64(logoH)*scale)))
	pad := int(math.Round(float64(min(w, h)) * paddingRatio))

	x := border + w - lw - pad
	y := border + pad
	return image.Rect(x, y, x+lw, y+lh)
}

func drawLogo(dst *image.RGBA, logo image.Image, border, w, h int) {
	lb := logo.Bounds()
	r := LogoRect(lb.Dx(), lb.Dy(), border, w, h)
	scaled := resize.Resize(uint(r.Dx()), uint(r.Dy()), logo, resize.Lanczos3)

	bg := image.Rect(r.Min.X-backingPad, r.Min.Y-backingPad, r.Max.X+backingPad, r.Max.Y+backingPad)
	draw.DrawMask(dst, bg, image.NewUniform(backing), image.Point{}, roundedRect{r: bg, radius: backingR}, bg.Min, draw.Over)
	draw.Draw(dst, r, scaled, scaled.Bounds().Min, draw.Over)
}

// roundedRect - альфа-маска прямоугольника со скруглёнными углами.
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }

func (m roundedRect) Bounds() image.Rectangle { return m.r }

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return color.Transparent
	}
	rad := min(m.radius, m.r.Dx()/2, m.r.Dy()/2)
	cx, cy := x, y
	switch {
	case x < m.r.Min.X+rad:
		cx = m.r.Min.X + rad
	case x >= m.r.Max.X-rad:
		cx = m.r.Max.X - rad - 1
	}
	switch {
	case y < m.r.Min.Y+rad:
		cy = m.r.Min.Y + rad
	case y >= m.r.Max.Y-rad:
		cy = m.r.Max.Y - rad - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > rad*rad {
		return color.Transparent
	}
	return color.Opaque
}

// FileName - имя файла экспорта: screened_<имя без расширения>.jpg.
func FileName(original string) string {
	base := strings.TrimSuffix(path.Base(original), path.Ext(original))
	if base == "" || base == "." || base == "/" {
		base = "photo"
	}
	return "screened_" + base + ".jpg"
}
