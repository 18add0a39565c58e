// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/qr-checkin/internal/appcontext"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"github.com/labstack/echo/v4"
)

// errUploadTooLarge is returned when an upload exceeds its limit.
var errUploadTooLarge = errors.New("upload too large")

// currentStaff returns the signed-in staff member. Routes behind
// RequireStaff always have one.
func currentStaff(c echo.Context) *models.Staff {
	if cc := appcontext.From(c); cc != nil {
		return cc.Staff
	}
	return nil
}

// readUpload returns the content of a multipart file field, or nil when
// the field is absent.
func readUpload(c echo.Context, field string, limit int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", field, err)
	}
	defer f.Close()

	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errUploadTooLarge
	}
	return data, nil
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}
