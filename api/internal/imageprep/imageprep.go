package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// Quality - качество JPEG для отправки в AI-сервис.
const Quality = 85

// MaxPixels - предел ширина×высота, проверяется по заголовку до декодирования.
const MaxPixels = 50_000_000

var ErrDecode = errors.New("image cannot be decoded")

// Payload - изображение, готовое к передаче в JSON.
type Payload struct {
	Base64   string
	MIMEType string
	Width    int
	Height   int
	Bytes    int
}

// Prepare уменьшает картинку так, чтобы ни одна сторона не превышала maxDimension,
// и перекодирует её в JPEG. maxDimension <= 0 - без масштабирования. Увеличения нет.
// Входной срез не изменяется.
func Prepare(data []byte, maxDimension int) (Payload, error) {
	img, _, err := Decode(data)
	if err != nil {
		return Payload{}, err
	}

	out := Fit(img, maxDimension)
	raw, err := EncodeJPEG(out, Quality)
	if err != nil {
		return Payload{}, err
	}
	b := out.Bounds()
	return Payload{
		Base64:   base64.StdEncoding.EncodeToString(raw),
		MIMEType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
		Bytes:    len(raw),
	}, nil
}

// Fit вписывает изображение в квадрат maxDimension с сохранением пропорций.
func Fit(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension {
		return img
	}
	return resize.Thumbnail(uint(maxDimension), uint(maxDimension), img, resize.Lanczos3)
}

// EncodeJPEG кодирует изображение в JPEG; прозрачные области заливаются белым.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode - общий декодер для загрузок и экспорта.
func Decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}
