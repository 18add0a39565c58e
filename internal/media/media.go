// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package media stores participant photos on local disk.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// PhotoDir is the directory below the media root holding participant photos.
const PhotoDir = "student_images"

var (
	// ErrUnsupportedType is returned for uploads that are not an allowed image type.
	ErrUnsupportedType = errors.New("unsupported photo type")
	// ErrTooLarge is returned for uploads above the configured size limit.
	ErrTooLarge = errors.New("photo too large")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("photo is empty")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store writes files below a root directory.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore creates a store rooted at root. maxBytes of zero disables the
// size check.
func NewStore(root string, maxBytes int64) *Store {
	return &Store{root: root, maxBytes: maxBytes}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Detect returns the canonical extension (with dot) for an allowed image.
func (s *Store) Detect(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), s.maxBytes)
	}
	mt := mimetype.Detect(data)
	for _, allowed := range allowedTypes {
		if mt.Is(allowed) {
			return mt.Extension(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// PhotoPath returns the relative path of a participant photo,
// student_images/{id}_{username}{ext}.
func PhotoPath(participantID int64, username, ext string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(username, "_"), "._")
	if name == "" {
		name = "participant"
	}
	return filepath.ToSlash(filepath.Join(PhotoDir, fmt.Sprintf("%d_%s%s", participantID, name, ext)))
}

// SavePhoto validates data and writes it under its final name. It
// returns the path relative to the root.
func (s *Store) SavePhoto(participantID int64, username string, data []byte) (string, error) {
	ext, err := s.Detect(data)
	if err != nil {
		return "", err
	}

	rel := PhotoPath(participantID, username, ext)
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("creating photo directory: %w", err)
	}

	// Write to a temp file first so a failed write never leaves a partial photo.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("renaming photo: %w", err)
	}
	return rel, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}
	return nil
}
