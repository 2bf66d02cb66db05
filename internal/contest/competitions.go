package contest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/ids"
)

// CompetitionInput carries the fields of a new competition.
type CompetitionInput struct {
	Title        string
	Description  string
	IsPaid       bool
	Fee          decimal.Decimal
	WhatsappLink string
	Status       CompetitionStatus
	StartDate    *time.Time
	EndDate      *time.Time
}

// Competitions manages competition records and thumbnails.
type Competitions struct {
	store CompetitionStore
	blobs blob.Store
	now   func() time.Time
}

func NewCompetitions(store CompetitionStore, blobs blob.Store) *Competitions {
	return &Competitions{store: store, blobs: blobs, now: time.Now}
}

// List returns competitions matching f.
func (c *Competitions) List(ctx context.Context, f CompetitionFilter) ([]*Competition, error) {
	return c.store.ListCompetitions(ctx, f)
}

// ListActive returns published competitions, latest start first.
func (c *Competitions) ListActive(ctx context.Context) ([]*Competition, error) {
	return c.store.ListCompetitions(ctx, CompetitionFilter{Status: StatusActive})
}

func (c *Competitions) Get(ctx context.Context, id string) (*Competition, error) {
	return c.store.GetCompetition(ctx, id)
}

// Count returns the total number of competitions.
func (c *Competitions) Count(ctx context.Context) (int, error) {
	return c.store.CountCompetitions(ctx)
}

// Create stores a competition with an optional thumbnail. Status defaults to draft.
func (c *Competitions) Create(ctx context.Context, createdBy string, in CompetitionInput, thumb *blob.File) (*Competition, string, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, "", fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !in.Status.Valid() {
		return nil, "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}
	if in.Fee.IsNegative() {
		return nil, "", fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
	}
	comp := &Competition{
		ID:           ids.New(),
		Title:        title,
		Description:  in.Description,
		IsPaid:       in.IsPaid,
		Fee:          in.Fee.Round(2),
		WhatsappLink: strings.TrimSpace(in.WhatsappLink),
		Status:       in.Status,
		StartDate:    in.StartDate,
		EndDate:      in.EndDate,
		CreatedBy:    createdBy,
		CreatedAt:    c.now().UTC(),
	}
	if thumb != nil {
		path, err := c.blobs.Save(ctx, blob.FolderCompetitions, *thumb, blob.MediaAllowlist(blob.DefaultMaxBytes))
		if err != nil {
			return nil, "", err
		}
		comp.Thumbnail = path
	}
	if err := c.store.InsertCompetition(ctx, comp); err != nil {
		return nil, "", err
	}
	return comp, "Competition created.", nil
}

// Update coalesces p onto the stored competition. A new thumbnail replaces the
// current one.
func (c *Competitions) Update(ctx context.Context, id string, p CompetitionPatch, thumb *blob.File) (string, error) {
	if p.Status != nil && !p.Status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
	}
	if p.Fee != nil {
		if p.Fee.IsNegative() {
			return "", fmt.Errorf("%w: fee must not be negative", ErrInvalidInput)
		}
		fee := p.Fee.Round(2)
		p.Fee = &fee
	}
	if _, err := c.store.GetCompetition(ctx, id); err != nil {
		return "", err
	}
	if thumb != nil {
		path, err := c.blobs.Save(ctx, blob.FolderCompetitions, *thumb, blob.MediaAllowlist(blob.DefaultMaxBytes))
		if err != nil {
			return "", err
		}
		p.Thumbnail = &path
	}
	if err := c.store.UpdateCompetition(ctx, id, p); err != nil {
		return "", err
	}
	return "Competition updated.", nil
}

func (c *Competitions) Delete(ctx context.Context, id string) (string, error) {
	if err := c.store.DeleteCompetition(ctx, id); err != nil {
		return "", err
	}
	return "Competition removed.", nil
}
