package blob

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Disk writes uploads below a root directory served at a public prefix.
type Disk struct {
	root   string
	prefix string
}

// NewDisk creates root if needed. prefix is the URL path the root is served at,
// usually "/uploads".
func NewDisk(root, prefix string) (*Disk, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	if prefix == "" {
		prefix = "/uploads"
	}
	return &Disk{root: root, prefix: "/" + strings.Trim(prefix, "/")}, nil
}

var _ Store = (*Disk)(nil)

// Root returns the directory uploads are written to.
func (d *Disk) Root() string { return d.root }

// Save sniffs the content type when the client omitted it, enforces the
// allowlist and writes the file as <folder>-<uuid><ext>.
func (d *Disk) Save(ctx context.Context, folder string, f File, allow Allowlist) (string, error) {
	if folder == "" || strings.ContainsAny(folder, `/\.`) {
		return "", ErrInvalidFolder
	}
	if f.Reader == nil {
		return "", errors.New("blob: empty upload")
	}
	br := bufio.NewReaderSize(f.Reader, 512)
	ct := normalizeType(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		head, _ := br.Peek(512)
		ct = normalizeType(http.DetectContentType(head))
	}
	if !allow.allows(ct) {
		return "", ErrUnsupportedType
	}

	dir := filepath.Join(d.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blob: create folder: %w", err)
	}
	name := folder + "-" + uuid.NewString() + extensionFor(f.Name, ct)
	full := filepath.Join(dir, name)
	out, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob: create file: %w", err)
	}

	limit := allow.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	n, err := io.Copy(out, io.LimitReader(&ctxReader{ctx: ctx, r: br}, limit+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("blob: write: %w", err)
	case n > limit:
		_ = os.Remove(full)
		return "", ErrTooLarge
	case closeErr != nil:
		_ = os.Remove(full)
		return "", fmt.Errorf("blob: close: %w", closeErr)
	}
	return path.Join(d.prefix, folder, name), nil
}

// ctxReader stops long uploads once the request is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
