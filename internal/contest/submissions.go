package contest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/ids"
)

// Receipt is returned to a student after submitting.
type Receipt struct {
	Submission   *Submission
	Message      string
	WhatsappLink string
}

// Submissions manages student entries.
type Submissions struct {
	store        SubmissionStore
	competitions CompetitionStore
	blobs        blob.Store
	now          func() time.Time
}

func NewSubmissions(store SubmissionStore, competitions CompetitionStore, blobs blob.Store) *Submissions {
	return &Submissions{store: store, competitions: competitions, blobs: blobs, now: time.Now}
}

// Create records an entry for an existing competition and returns the
// competition's WhatsApp link.
func (s *Submissions) Create(ctx context.Context, studentID, competitionID, notes string, media *blob.File) (Receipt, error) {
	competitionID = strings.TrimSpace(competitionID)
	if studentID == "" || competitionID == "" {
		return Receipt{}, fmt.Errorf("%w: competition is required", ErrInvalidInput)
	}
	comp, err := s.competitions.GetCompetition(ctx, competitionID)
	if err != nil {
		return Receipt{}, err
	}
	sub := &Submission{
		ID:            ids.New(),
		StudentID:     studentID,
		CompetitionID: comp.ID,
		Notes:         strings.TrimSpace(notes),
		Status:        SubmissionPending,
		CreatedAt:     s.now().UTC(),
	}
	if media != nil {
		path, err := s.blobs.Save(ctx, blob.FolderSubmissions, *media, blob.MediaAllowlist(blob.SubmissionMaxBytes))
		if err != nil {
			return Receipt{}, err
		}
		sub.MediaPath = path
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return Receipt{}, err
	}
	sub.CompetitionTitle = comp.Title
	return Receipt{Submission: sub, Message: "Submission received.", WhatsappLink: comp.WhatsappLink}, nil
}

// ListForStudent returns the student's own entries, newest first.
func (s *Submissions) ListForStudent(ctx context.Context, studentID string) ([]*Submission, error) {
	return s.store.ListStudentSubmissions(ctx, studentID)
}

// List returns all entries, newest first. limit <= 0 means no limit.
func (s *Submissions) List(ctx context.Context, limit int) ([]*Submission, error) {
	return s.store.ListSubmissions(ctx, limit)
}

func (s *Submissions) Count(ctx context.Context) (int, error) {
	return s.store.CountSubmissions(ctx)
}

func (s *Submissions) UpdateStatus(ctx context.Context, id string, status SubmissionStatus) (string, error) {
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.store.UpdateSubmissionStatus(ctx, id, status); err != nil {
		return "", err
	}
	return "Submission updated.", nil
}

func (s *Submissions) Delete(ctx context.Context, id string) (string, error) {
	if err := s.store.DeleteSubmission(ctx, id); err != nil {
		return "", err
	}
	return "Submission deleted.", nil
}
