package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"globalbangla.org/internal/audit"
	"globalbangla.org/internal/auth"
	"globalbangla.org/internal/blob"
	"globalbangla.org/internal/contest"
)

const latestWinners = 6

type submissionRequest struct {
	CompetitionID string `json:"competitionId" validate:"required"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type profileRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=120"`
	School          *string `json:"school" validate:"omitempty,max=200"`
	AffiliateSchool *string `json:"affiliateSchool" validate:"omitempty,max=200"`
}

type studentDashboard struct {
	Profile      *auth.User             `json:"profile"`
	Competitions []*contest.Competition `json:"competitions"`
	Submissions  []*contest.Submission  `json:"submissions"`
	Winners      []*contest.Winner      `json:"winners"`
	Settings     *contest.Settings      `json:"settings"`
}

func (a *API) studentDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principalOf(r)
	profile, err := a.svc.Accounts.Profile(ctx, p.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var d studentDashboard
	d.Profile = profile
	if d.Competitions, err = a.svc.Competitions.ListActive(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Submissions, err = a.svc.Submissions.ListForStudent(ctx, p.ID); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Winners, err = a.svc.Winners.List(ctx, latestWinners); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Settings, err = a.svc.Settings.Get(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) publicCompetitions(w http.ResponseWriter, r *http.Request) {
	a.activeCompetitions(w, r)
}

func (a *API) activeCompetitions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Competitions.ListActive(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

// competition hides unpublished competitions from students.
func (a *API) competition(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.Competitions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleError(w, r, err)
		return
	}
	if c.Status != contest.StatusActive && !auth.IsAdmin(principalOf(r)) {
		handleError(w, r, contest.ErrCompetitionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) results(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Winners.List(r.Context(), 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) mySubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Submissions.ListForStudent(r.Context(), principalOf(r).ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) createSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !a.bind(w, r, &req) {
		return
	}
	media, closer, ok := a.upload(w, r, "media")
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	receipt, err := a.svc.Submissions.Create(r.Context(), principalOf(r).ID, req.CompetitionID, req.Notes, media)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "submission.created", map[string]any{
		"submission_id":  receipt.Submission.ID,
		"competition_id": receipt.Submission.CompetitionID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      receipt.Message,
		"whatsappLink": receipt.WhatsappLink,
		"submission":   receipt.Submission,
	})
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !a.bind(w, r, &req) {
		return
	}
	patch := auth.ProfilePatch{Name: req.Name, School: req.School, AffiliateSchool: req.AffiliateSchool}
	if err := a.svc.Accounts.UpdateProfile(r.Context(), principalOf(r).ID, patch); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.updated", nil)
	writeMessage(w, http.StatusOK, "Profile updated.")
}

func (a *API) uploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	file, closer, ok := a.upload(w, r, "profilePicture")
	if !ok {
		return
	}
	if file == nil {
		if file, closer, ok = a.upload(w, r, "profile"); !ok {
			return
		}
	}
	if file == nil {
		writeError(w, r, http.StatusBadRequest, "No file uploaded.")
		return
	}
	defer closer.Close()
	if a.svc.Blobs == nil {
		handleError(w, r, errors.New("blob store not configured"))
		return
	}
	path, err := a.svc.Blobs.Save(r.Context(), blob.FolderProfiles, *file, blob.MediaAllowlist(blob.DefaultMaxBytes))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.svc.Accounts.SetProfilePicture(r.Context(), principalOf(r).ID, path); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.picture_updated", map[string]any{"path": path})
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Profile picture updated.",
		"profilePath": path,
	})
}

func (a *API) siteSettings(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Settings.Get(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// upload reads an optional multipart file, answering 400 when the form is
// unreadable.
func (a *API) upload(w http.ResponseWriter, r *http.Request, field string) (*blob.File, io.Closer, bool) {
	f, closer, err := formFile(r, field)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large.")
			return nil, nil, false
		}
		writeError(w, r, http.StatusBadRequest, sentence(err.Error()))
		return nil, nil, false
	}
	return f, closer, true
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
