// Package blob stores uploaded media and returns public paths for it.
package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	ErrUnsupportedType = errors.New("blob: unsupported file type")
	ErrTooLarge        = errors.New("blob: file too large")
	ErrInvalidFolder   = errors.New("blob: invalid folder")
)

const (
	MB = 1 << 20

	// DefaultMaxBytes applies to pictures, thumbnails and logos.
	DefaultMaxBytes = 10 * MB
	// SubmissionMaxBytes applies to student submission media.
	SubmissionMaxBytes = 200 * MB
)

// Folders used by the application.
const (
	FolderProfiles     = "profiles"
	FolderCompetitions = "competitions"
	FolderWinners      = "winners"
	FolderLogos        = "logos"
	FolderSubmissions  = "submissions"
)

var mediaTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/mpeg":      ".mpeg",
	"video/quicktime": ".mov",
}

// File is an upload in flight.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// Allowlist restricts what Save accepts.
type Allowlist struct {
	Types    map[string]bool
	MaxBytes int64
}

// MediaAllowlist accepts every supported image and video type up to max bytes.
func MediaAllowlist(max int64) Allowlist {
	types := make(map[string]bool, len(mediaTypes))
	for ct := range mediaTypes {
		types[ct] = true
	}
	return Allowlist{Types: types, MaxBytes: max}
}

func (a Allowlist) allows(contentType string) bool {
	return a.Types[normalizeType(contentType)]
}

// Store persists uploads. Save returns the public path of the stored object.
type Store interface {
	Save(ctx context.Context, folder string, f File, allow Allowlist) (string, error)
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// extensionFor uses the accepted content type's extension and falls back to
// the client file name.
func extensionFor(name, contentType string) string {
	if ext, ok := mediaTypes[normalizeType(contentType)]; ok {
		return ext
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 {
		ext := strings.ToLower(name[i:])
		if !strings.ContainsAny(ext, `/\`) && len(ext) <= 6 {
			return ext
		}
	}
	return ""
}
