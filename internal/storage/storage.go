// Package storage keeps uploaded leaf images so the result page can show them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists an uploaded image and returns the URL the result page uses.
type Store interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ErrTooLarge is returned when an upload exceeds the store's size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// ObjectName builds a unique, time-ordered object name that keeps the
// original extension when it is a known image type.
func ObjectName(now time.Time, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("%d-%s%s", now.Unix(), uuid.NewString(), ext)
}
