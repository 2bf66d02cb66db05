// Package contest manages competitions, submissions, winners and site settings.
package contest

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("contest: not found")
	ErrCompetitionNotFound = fmt.Errorf("%w: competition", ErrNotFound)
	ErrInvalidInput        = errors.New("contest: invalid input")
)

// CompetitionStatus is the publication state of a competition.
type CompetitionStatus string

const (
	StatusDraft  CompetitionStatus = "draft"
	StatusActive CompetitionStatus = "active"
	StatusClosed CompetitionStatus = "closed"
)

func (s CompetitionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusClosed:
		return true
	}
	return false
}

// Competition is an event students enter.
type Competition struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	IsPaid       bool              `json:"is_paid"`
	Fee          decimal.Decimal   `json:"fee"`
	WhatsappLink string            `json:"whatsapp_link"`
	Thumbnail    string            `json:"thumbnail,omitempty"`
	Status       CompetitionStatus `json:"status"`
	StartDate    *time.Time        `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// CompetitionPatch is a partial update; nil fields keep their value.
type CompetitionPatch struct {
	Title        *string
	Description  *string
	IsPaid       *bool
	Fee          *decimal.Decimal
	WhatsappLink *string
	Status       *CompetitionStatus
	StartDate    *time.Time
	EndDate      *time.Time
	Thumbnail    *string
}

// Apply coalesces p onto c.
func (p CompetitionPatch) Apply(c *Competition) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.IsPaid != nil {
		c.IsPaid = *p.IsPaid
	}
	if p.Fee != nil {
		c.Fee = *p.Fee
	}
	if p.WhatsappLink != nil {
		c.WhatsappLink = *p.WhatsappLink
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.StartDate != nil {
		t := *p.StartDate
		c.StartDate = &t
	}
	if p.EndDate != nil {
		t := *p.EndDate
		c.EndDate = &t
	}
	if p.Thumbnail != nil {
		c.Thumbnail = *p.Thumbnail
	}
}

// CompetitionFilter narrows List. A zero filter returns everything.
type CompetitionFilter struct {
	Status CompetitionStatus
}

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return true
	}
	return false
}

// Submission is a student's entry. Joined fields are filled on reads.
type Submission struct {
	ID               string           `json:"id"`
	StudentID        string           `json:"student_id"`
	CompetitionID    string           `json:"competition_id"`
	MediaPath        string           `json:"media_path,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Status           SubmissionStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	StudentName      string           `json:"name,omitempty"`
	StudentEmail     string           `json:"email,omitempty"`
	CompetitionTitle string           `json:"competition,omitempty"`
}

// Winner is a published result.
type Winner struct {
	ID               string    `json:"id"`
	CompetitionID    string    `json:"competition_id,omitempty"`
	StudentName      string    `json:"student_name"`
	School           string    `json:"school,omitempty"`
	MediaPath        string    `json:"media_path,omitempty"`
	HighlightText    string    `json:"highlight_text,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	CompetitionTitle string    `json:"competition,omitempty"`
}

// Settings is the singleton site configuration.
type Settings struct {
	LogoPath      string          `json:"logo_path,omitempty"`
	AffiliateText string          `json:"affiliate_text,omitempty"`
	AboutContent  string          `json:"about_content,omitempty"`
	Features      map[string]bool `json:"features"`
}

// SettingsPatch is a partial settings update. A non-nil Features map replaces
// the stored map.
type SettingsPatch struct {
	AffiliateText *string
	AboutContent  *string
	Features      map[string]bool
	LogoPath      *string
}

// Apply coalesces p onto s.
func (p SettingsPatch) Apply(s *Settings) {
	if p.AffiliateText != nil {
		s.AffiliateText = *p.AffiliateText
	}
	if p.AboutContent != nil {
		s.AboutContent = *p.AboutContent
	}
	if p.Features != nil {
		s.Features = copyFeatures(p.Features)
	}
	if p.LogoPath != nil {
		s.LogoPath = *p.LogoPath
	}
}

func copyFeatures(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
