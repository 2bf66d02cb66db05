package blob

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDiskSaveWritesNamedFile(t *testing.T) {
	root := t.TempDir()
	d, err := NewDisk(root, "/uploads/")
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	p, err := d.Save(context.Background(), FolderProfiles, File{Name: "me.PNG", ContentType: "image/png", Reader: bytes.NewReader(pngHeader)}, MediaAllowlist(DefaultMaxBytes))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	re := regexp.MustCompile(`^/uploads/profiles/profiles-[0-9a-f-]{36}\.png$`)
	if !re.MatchString(p) {
		t.Fatalf("unexpected path %q", p)
	}
	data, err := os.ReadFile(filepath.Join(root, "profiles", filepath.Base(p)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Fatalf("content mismatch")
	}
}

func TestDiskSaveSniffsMissingType(t *testing.T) {
	d, _ := NewDisk(t.TempDir(), "")
	p, err := d.Save(context.Background(), FolderLogos, File{Name: "logo", Reader: bytes.NewReader(pngHeader)}, MediaAllowlist(DefaultMaxBytes))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(p, ".png") {
		t.Fatalf("expected sniffed png extension, got %q", p)
	}
}

func TestDiskSaveRejectsType(t *testing.T) {
	d, _ := NewDisk(t.TempDir(), "")
	_, err := d.Save(context.Background(), FolderWinners, File{Name: "x.pdf", ContentType: "application/pdf", Reader: strings.NewReader("%PDF-1.4")}, MediaAllowlist(DefaultMaxBytes))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestDiskSaveRejectsOversize(t *testing.T) {
	root := t.TempDir()
	d, _ := NewDisk(root, "")
	body := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	_, err := d.Save(context.Background(), FolderSubmissions, File{Name: "a.png", ContentType: "image/png", Reader: bytes.NewReader(body)}, MediaAllowlist(32))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, FolderSubmissions))
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %d entries", len(entries))
	}
}

func TestDiskSaveRejectsTraversal(t *testing.T) {
	d, _ := NewDisk(t.TempDir(), "")
	_, err := d.Save(context.Background(), "../etc", File{Name: "a.png", ContentType: "image/png", Reader: bytes.NewReader(pngHeader)}, MediaAllowlist(DefaultMaxBytes))
	if !errors.Is(err, ErrInvalidFolder) {
		t.Fatalf("expected ErrInvalidFolder, got %v", err)
	}
}
