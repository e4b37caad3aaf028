package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate90CW(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	// 3x2 の画像。左上を赤、右下を青にする
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, red)
	src.Set(2, 1, blue)

	dst := Rotate90CW(src)
	assert.Equal(t, image.Rect(0, 0, 2, 3), dst.Bounds())

	// 時計回りなので左上は右上に、右下は左下に移る
	assert.Equal(t, red, dst.RGBAAt(1, 0))
	assert.Equal(t, blue, dst.RGBAAt(0, 2))
}

func TestRotate90CW_OffsetBounds(t *testing.T) {
	green := color.RGBA{G: 255, A: 255}
	src := image.NewRGBA(image.Rect(10, 20, 14, 22))
	src.Set(10, 20, green)

	dst := Rotate90CW(src)
	assert.Equal(t, image.Rect(0, 0, 2, 4), dst.Bounds())
	assert.Equal(t, green, dst.RGBAAt(1, 0))
}

func TestRotateJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		for y := 0; y < 32; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 8), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))

	out, err := RotateJPEG(buf.Bytes())
	require.NoError(t, err)
	assert.NotEqual(t, buf.Bytes(), out)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 64, cfg.Height)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not an image"))
	assert.Error(t, err)

	_, err = RotateJPEG(nil)
	assert.Error(t, err)
}
