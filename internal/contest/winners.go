package contest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/ids"
)

// WinnerInput carries a new result.
type WinnerInput struct {
	CompetitionID string
	StudentName   string
	School        string
	HighlightText string
}

// Winners manages published results.
type Winners struct {
	store WinnerStore
	blobs blob.Store
	now   func() time.Time
}

func NewWinners(store WinnerStore, blobs blob.Store) *Winners {
	return &Winners{store: store, blobs: blobs, now: time.Now}
}

func (w *Winners) Add(ctx context.Context, in WinnerInput, media *blob.File) (*Winner, string, error) {
	name := strings.TrimSpace(in.StudentName)
	if name == "" {
		return nil, "", fmt.Errorf("%w: student name is required", ErrInvalidInput)
	}
	win := &Winner{
		ID:            ids.New(),
		CompetitionID: strings.TrimSpace(in.CompetitionID),
		StudentName:   name,
		School:        strings.TrimSpace(in.School),
		HighlightText: strings.TrimSpace(in.HighlightText),
		CreatedAt:     w.now().UTC(),
	}
	if media != nil {
		path, err := w.blobs.Save(ctx, blob.FolderWinners, *media, blob.MediaAllowlist(blob.DefaultMaxBytes))
		if err != nil {
			return nil, "", err
		}
		win.MediaPath = path
	}
	if err := w.store.InsertWinner(ctx, win); err != nil {
		return nil, "", err
	}
	return win, "Winner added.", nil
}

// List returns winners newest first. limit <= 0 means no limit.
func (w *Winners) List(ctx context.Context, limit int) ([]*Winner, error) {
	return w.store.ListWinners(ctx, limit)
}

func (w *Winners) Remove(ctx context.Context, id string) (string, error) {
	if err := w.store.DeleteWinner(ctx, id); err != nil {
		return "", err
	}
	return "Winner removed.", nil
}
