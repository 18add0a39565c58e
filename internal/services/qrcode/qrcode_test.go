// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package qrcode_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/qr-checkin/internal/services/qrcode"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_RoundTrip(t *testing.T) {
	enc := qrcode.NewEncoder(0)
	g := token.NewGenerator("salt")

	for range 5 {
		tok, err := g.Generate("Alice", "EXPO24")
		require.NoError(t, err)

		img, err := enc.Encode(tok)
		require.NoError(t, err)

		decoded, err := qrcode.Decode(img)
		require.NoError(t, err)
		assert.Equal(t, tok, decoded)
	}
}

func TestEncode_PNGBlackOnWhite(t *testing.T) {
	data, err := qrcode.NewEncoder(4).Encode(strings.Repeat("a", 64))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// The quiet zone corner is white
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})

	var dark bool
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y && !dark; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r == 0 {
				dark = true
				break
			}
		}
	}
	assert.True(t, dark, "expected black modules")
}

func TestEncode_Deterministic(t *testing.T) {
	enc := qrcode.NewEncoder(0)
	tok := strings.Repeat("0f", 32)

	a, err := enc.Encode(tok)
	require.NoError(t, err)
	b, err := enc.Encode(tok)
	require.NoError(t, err)

	decodedA, err := qrcode.Decode(a)
	require.NoError(t, err)
	decodedB, err := qrcode.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, decodedA, decodedB)
}

func TestEncode_SurvivesDamage(t *testing.T) {
	tok := strings.Repeat("c3", 32)
	data, err := qrcode.NewEncoder(0).Encode(tok)
	require.NoError(t, err)

	src, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	// Paint over a block in the lower right data area, away from the
	// finder patterns.
	bounds := src.Bounds()
	damaged := image.NewRGBA(bounds)
	w, h := bounds.Dx(), bounds.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			damaged.Set(x, y, src.At(x, y))
		}
	}
	for y := h * 62 / 100; y < h*72/100; y++ {
		for x := w * 62 / 100; x < w*72/100; x++ {
			damaged.Set(x, y, color.White)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, damaged))

	decoded, err := qrcode.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tok, decoded)
}

func TestEncode_Empty(t *testing.T) {
	_, err := qrcode.NewEncoder(0).Encode("")

	assert.ErrorIs(t, err, qrcode.ErrEncoding)
}

func TestEncode_TooLong(t *testing.T) {
	_, err := qrcode.NewEncoder(0).Encode(strings.Repeat("x", qrcode.MaxContentLength+1))

	assert.ErrorIs(t, err, qrcode.ErrEncoding)
}

func TestDecode_NotAnImage(t *testing.T) {
	_, err := qrcode.Decode([]byte("not an image"))

	assert.ErrorIs(t, err, qrcode.ErrInvalidImage)
}

func TestDecode_NoCode(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := qrcode.Decode(buf.Bytes())

	assert.ErrorIs(t, err, qrcode.ErrNoCode)
}
