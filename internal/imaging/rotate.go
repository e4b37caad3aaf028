// Package imaging 撮影画像のデコード・回転・再エンコードを行う
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// MaxQuality はJPEGの最高品質
const MaxQuality = 100

// Decode はエンコード済みの画像をデコードする
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}
	return img, nil
}

// Rotate90CW は画像を時計回りに90度回転する
func Rotate90CW(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))

	// (x, y) -> (maxY - y, x - minX)
	m := f64.Aff3{
		0, -1, float64(b.Max.Y),
		1, 0, float64(-b.Min.X),
	}
	draw.NearestNeighbor.Transform(dst, m, src, b, draw.Src, nil)
	return dst
}

// EncodeJPEG は画像を指定品質のJPEGにエンコードする
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// RotateJPEG はJPEGを時計回りに90度回転し、最高品質で再エンコードする
func RotateJPEG(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(Rotate90CW(img), MaxQuality)
}
