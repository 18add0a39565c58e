// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package qrcode renders check-in tokens as PNG QR codes and reads them back
// from scanned images.
package qrcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // scans may arrive as JPEG
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	goqrcode "github.com/skip2/go-qrcode"
)

const (
	// MaxContentLength is the byte-mode capacity of a version 40 symbol at
	// the highest error correction level.
	MaxContentLength = 1273
	// DefaultModuleSize is the number of pixels per QR module.
	DefaultModuleSize = 10
)

var (
	// ErrEncoding is returned when content cannot be rendered as a QR code.
	ErrEncoding = errors.New("qr encoding failed")
	// ErrNoCode is returned when no QR code can be read from an image.
	ErrNoCode = errors.New("no qr code found")
	// ErrInvalidImage is returned when the data is not a PNG or JPEG image.
	ErrInvalidImage = errors.New("unreadable image")
)

// Encoder renders black-on-white QR codes with ~30% damage tolerance.
type Encoder struct {
	moduleSize int
}

// NewEncoder creates an encoder using moduleSize pixels per module.
func NewEncoder(moduleSize int) *Encoder {
	if moduleSize <= 0 {
		moduleSize = DefaultModuleSize
	}
	return &Encoder{moduleSize: moduleSize}
}

// Encode renders content as a PNG image.
func (e *Encoder) Encode(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty content", ErrEncoding)
	}
	if len(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content of %d bytes exceeds symbol capacity", ErrEncoding, len(content))
	}

	q, err := goqrcode.New(content, goqrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	q.ForegroundColor = color.Black
	q.BackgroundColor = color.White

	// A negative size renders a fixed number of pixels per module
	png, err := q.PNG(-e.moduleSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return png, nil
}

// Decode reads the text of the first QR code found in a PNG or JPEG image.
func Decode(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("prepare bitmap: %w", err)
	}

	hints := map[gozxing.DecodeHintType]any{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}
