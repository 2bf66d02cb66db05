package contest

import (
	"context"
)

// CompetitionStore persists competitions.
type CompetitionStore interface {
	InsertCompetition(ctx context.Context, c *Competition) error
	GetCompetition(ctx context.Context, id string) (*Competition, error)
	ListCompetitions(ctx context.Context, f CompetitionFilter) ([]*Competition, error)
	UpdateCompetition(ctx context.Context, id string, p CompetitionPatch) error
	DeleteCompetition(ctx context.Context, id string) error
	CountCompetitions(ctx context.Context) (int, error)
}

// SubmissionStore persists submissions. Listings are newest first and carry
// the joined student and competition fields.
type SubmissionStore interface {
	InsertSubmission(ctx context.Context, s *Submission) error
	ListSubmissions(ctx context.Context, limit int) ([]*Submission, error)
	ListStudentSubmissions(ctx context.Context, studentID string) ([]*Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status SubmissionStatus) error
	DeleteSubmission(ctx context.Context, id string) error
	CountSubmissions(ctx context.Context) (int, error)
}

// WinnerStore persists winners, newest first.
type WinnerStore interface {
	InsertWinner(ctx context.Context, w *Winner) error
	ListWinners(ctx context.Context, limit int) ([]*Winner, error)
	DeleteWinner(ctx context.Context, id string) error
}

// SettingsStore persists the settings singleton.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*Settings, error)
	UpdateSettings(ctx context.Context, p SettingsPatch) error
	SetFeature(ctx context.Context, key string, enabled bool) error
}
