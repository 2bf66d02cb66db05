package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"globalbangla.org/internal/audit"
	"globalbangla.org/internal/contest"
)

const latestSubmissions = 10

type createCompetitionRequest struct {
	Title        string           `json:"title" validate:"required,max=200"`
	Description  string           `json:"description" validate:"max=10000"`
	IsPaid       *flexBool        `json:"isPaid"`
	Fee          *decimal.Decimal `json:"fee"`
	WhatsappLink string           `json:"whatsappLink" validate:"omitempty,url"`
	Status       string           `json:"status" validate:"omitempty,oneof=draft active closed"`
	StartDate    *flexDate        `json:"startDate"`
	EndDate      *flexDate        `json:"endDate"`
}

// Updates keep the snake_case keys the admin site sends.
type updateCompetitionRequest struct {
	Title        *string          `json:"title" validate:"omitempty,max=200"`
	Description  *string          `json:"description" validate:"omitempty,max=10000"`
	IsPaid       *flexBool        `json:"is_paid"`
	Fee          *decimal.Decimal `json:"fee"`
	WhatsappLink *string          `json:"whatsapp_link" validate:"omitempty,url"`
	Status       *string          `json:"status" validate:"omitempty,oneof=draft active closed"`
	StartDate    *flexDate        `json:"start_date"`
	EndDate      *flexDate        `json:"end_date"`
}

type submissionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

type winnerRequest struct {
	CompetitionID string `json:"competitionId"`
	StudentName   string `json:"studentName" validate:"required,max=120"`
	School        string `json:"school" validate:"max=200"`
	HighlightText string `json:"highlightText" validate:"max=2000"`
}

type settingsRequest struct {
	AffiliateText *string         `json:"affiliateText"`
	AboutContent  *string         `json:"aboutContent"`
	Features      map[string]bool `json:"features" validate:"omitempty,dive,keys,featurekey,endkeys"`
}

type toggleFeatureRequest struct {
	Key     string   `json:"key" validate:"required,featurekey"`
	Enabled flexBool `json:"enabled"`
}

type adminStats struct {
	Students     int `json:"students"`
	Competitions int `json:"competitions"`
	Submissions  int `json:"submissions"`
	PaidOrders   int `json:"paid_orders"`
}

type adminDashboard struct {
	Stats             adminStats            `json:"stats"`
	LatestSubmissions []*contest.Submission `json:"latestSubmissions"`
	Winners           []*contest.Winner     `json:"winners"`
}

func (a *API) adminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		d   adminDashboard
		err error
	)
	if d.Stats.Students, err = a.svc.Accounts.CountStudents(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Stats.Competitions, err = a.svc.Competitions.Count(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Stats.Submissions, err = a.svc.Submissions.Count(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Stats.PaidOrders, err = a.svc.Payments.CountPaid(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	if d.LatestSubmissions, err = a.svc.Submissions.List(ctx, latestSubmissions); err != nil {
		handleError(w, r, err)
		return
	}
	if d.Winners, err = a.svc.Winners.List(ctx, latestWinners); err != nil {
		handleError(w, r, err)
		return
	}
	d.LatestSubmissions = nonNil(d.LatestSubmissions)
	d.Winners = nonNil(d.Winners)
	writeJSON(w, http.StatusOK, d)
}

func (a *API) listCompetitions(w http.ResponseWriter, r *http.Request) {
	filter := contest.CompetitionFilter{
		Status: contest.CompetitionStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "Unknown status.")
		return
	}
	list, err := a.svc.Competitions.List(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) createCompetition(w http.ResponseWriter, r *http.Request) {
	var req createCompetitionRequest
	if !a.bind(w, r, &req) {
		return
	}
	thumb, closer, ok := a.upload(w, r, "thumbnail")
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	in := contest.CompetitionInput{
		Title:        req.Title,
		Description:  req.Description,
		WhatsappLink: req.WhatsappLink,
		Status:       contest.CompetitionStatus(req.Status),
		StartDate:    req.StartDate.ptr(),
		EndDate:      req.EndDate.ptr(),
	}
	if req.IsPaid != nil {
		in.IsPaid = bool(*req.IsPaid)
	}
	if req.Fee != nil {
		in.Fee = *req.Fee
	}
	comp, msg, err := a.svc.Competitions.Create(r.Context(), principalOf(r).ID, in, thumb)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "competition.created", map[string]any{"competition_id": comp.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "competition": comp})
}

func (a *API) updateCompetition(w http.ResponseWriter, r *http.Request) {
	var req updateCompetitionRequest
	if !a.bind(w, r, &req) {
		return
	}
	thumb, closer, ok := a.upload(w, r, "thumbnail")
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	patch := contest.CompetitionPatch{
		Title:        req.Title,
		Description:  req.Description,
		IsPaid:       req.IsPaid.ptr(),
		Fee:          req.Fee,
		WhatsappLink: req.WhatsappLink,
		StartDate:    req.StartDate.ptr(),
		EndDate:      req.EndDate.ptr(),
	}
	if req.Status != nil {
		st := contest.CompetitionStatus(*req.Status)
		patch.Status = &st
	}
	id := mux.Vars(r)["id"]
	msg, err := a.svc.Competitions.Update(r.Context(), id, patch, thumb)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "competition.updated", map[string]any{"competition_id": id})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) deleteCompetition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msg, err := a.svc.Competitions.Delete(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "competition.deleted", map[string]any{"competition_id": id})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Submissions.List(r.Context(), 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) updateSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionStatusRequest
	if !a.bind(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	msg, err := a.svc.Submissions.UpdateStatus(r.Context(), id, contest.SubmissionStatus(req.Status))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "submission.status_updated", map[string]any{
		"submission_id": id,
		"status":        req.Status,
	})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msg, err := a.svc.Submissions.Delete(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "submission.deleted", map[string]any{"submission_id": id})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) listWinners(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Winners.List(r.Context(), 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) addWinner(w http.ResponseWriter, r *http.Request) {
	var req winnerRequest
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
	win, msg, err := a.svc.Winners.Add(r.Context(), contest.WinnerInput{
		CompetitionID: req.CompetitionID,
		StudentName:   req.StudentName,
		School:        req.School,
		HighlightText: req.HighlightText,
	}, media)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "winner.added", map[string]any{"winner_id": win.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "winner": win})
}

func (a *API) removeWinner(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msg, err := a.svc.Winners.Remove(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "winner.removed", map[string]any{"winner_id": id})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !a.bind(w, r, &req) {
		return
	}
	logo, closer, ok := a.upload(w, r, "logo")
	if !ok {
		return
	}
	if closer != nil {
		defer closer.Close()
	}
	msg, err := a.svc.Settings.Update(r.Context(), contest.SettingsPatch{
		AffiliateText: req.AffiliateText,
		AboutContent:  req.AboutContent,
		Features:      req.Features,
	}, logo)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "settings.updated", nil)
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) toggleFeature(w http.ResponseWriter, r *http.Request) {
	var req toggleFeatureRequest
	if !a.bind(w, r, &req) {
		return
	}
	msg, err := a.svc.Settings.ToggleFeature(r.Context(), req.Key, bool(req.Enabled))
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "settings.feature_toggled", map[string]any{
		"key":     req.Key,
		"enabled": bool(req.Enabled),
	})
	writeMessage(w, http.StatusOK, msg)
}

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Accounts.Students(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.Payments.Orders(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}
