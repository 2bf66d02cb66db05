package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"globalbangla.org/internal/contest"
)

var (
	_ contest.CompetitionStore = (*Store)(nil)
	_ contest.SubmissionStore  = (*Store)(nil)
	_ contest.WinnerStore      = (*Store)(nil)
	_ contest.SettingsStore    = (*Store)(nil)
)

const competitionColumns = `id, title, description, is_paid, fee, whatsapp_link, thumbnail, status,
	start_date, end_date, coalesce(created_by, ''), created_at`

func scanCompetition(row rowScanner) (*contest.Competition, error) {
	var c contest.Competition
	var status string
	var start, end sql.NullTime
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.IsPaid, &c.Fee, &c.WhatsappLink,
		&c.Thumbnail, &status, &start, &end, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = contest.CompetitionStatus(status)
	c.StartDate, c.EndDate = timePtr(start), timePtr(end)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) InsertCompetition(ctx context.Context, c *contest.Competition) error {
	_, err := s.db.ExecContext(ctx, `
		insert into competitions (id, title, description, is_paid, fee, whatsapp_link, thumbnail,
			status, start_date, end_date, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, nullif($11, ''), $12)`,
		c.ID, c.Title, c.Description, c.IsPaid, c.Fee, c.WhatsappLink, c.Thumbnail,
		string(c.Status), nullTime(c.StartDate), nullTime(c.EndDate), c.CreatedBy, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert competition: %w", err)
	}
	return nil
}

func (s *Store) GetCompetition(ctx context.Context, id string) (*contest.Competition, error) {
	c, err := scanCompetition(s.db.QueryRowContext(ctx,
		`select `+competitionColumns+` from competitions where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contest.ErrCompetitionNotFound
	}
	return c, err
}

func (s *Store) ListCompetitions(ctx context.Context, f contest.CompetitionFilter) ([]*contest.Competition, error) {
	query := `select ` + competitionColumns + ` from competitions`
	var args []any
	if f.Status != "" {
		query += ` where status = $1 order by start_date desc nulls last, id desc`
		args = append(args, string(f.Status))
	} else {
		query += ` order by created_at desc, id desc`
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*contest.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCompetition(ctx context.Context, id string, p contest.CompetitionPatch) error {
	var isPaid sql.NullBool
	if p.IsPaid != nil {
		isPaid = sql.NullBool{Bool: *p.IsPaid, Valid: true}
	}
	var fee decimal.NullDecimal
	if p.Fee != nil {
		fee = decimal.NullDecimal{Decimal: *p.Fee, Valid: true}
	}
	var status sql.NullString
	if p.Status != nil {
		status = sql.NullString{String: string(*p.Status), Valid: true}
	}
	return s.execOne(ctx, contest.ErrCompetitionNotFound, `
		update competitions
		set title = coalesce($2, title),
			description = coalesce($3, description),
			is_paid = coalesce($4, is_paid),
			fee = coalesce($5, fee),
			whatsapp_link = coalesce($6, whatsapp_link),
			status = coalesce($7, status),
			start_date = coalesce($8, start_date),
			end_date = coalesce($9, end_date),
			thumbnail = coalesce($10, thumbnail)
		where id = $1`,
		id, nullString(p.Title), nullString(p.Description), isPaid, fee,
		nullString(p.WhatsappLink), status, nullTime(p.StartDate), nullTime(p.EndDate), nullString(p.Thumbnail))
}

func (s *Store) DeleteCompetition(ctx context.Context, id string) error {
	return s.execOne(ctx, contest.ErrCompetitionNotFound, `delete from competitions where id = $1`, id)
}

func (s *Store) CountCompetitions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from competitions`).Scan(&n)
	return n, err
}

func (s *Store) InsertSubmission(ctx context.Context, sub *contest.Submission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into submissions (id, student_id, competition_id, media_path, notes, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.StudentID, sub.CompetitionID, sub.MediaPath, sub.Notes, string(sub.Status), sub.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const submissionSelect = `
	select s.id, s.student_id, s.competition_id, s.media_path, s.notes, s.status, s.created_at,
		u.name, u.email, c.title
	from submissions s
	join users u on u.id = s.student_id
	join competitions c on c.id = s.competition_id`

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]*contest.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*contest.Submission
	for rows.Next() {
		var sub contest.Submission
		var status string
		if err := rows.Scan(&sub.ID, &sub.StudentID, &sub.CompetitionID, &sub.MediaPath, &sub.Notes,
			&status, &sub.CreatedAt, &sub.StudentName, &sub.StudentEmail, &sub.CompetitionTitle); err != nil {
			return nil, err
		}
		sub.Status = contest.SubmissionStatus(status)
		sub.CreatedAt = sub.CreatedAt.UTC()
		out = append(out, &sub)
	}
	return out, rows.Err()
}

func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]*contest.Submission, error) {
	query := submissionSelect + ` order by s.created_at desc, s.id desc`
	if limit > 0 {
		query += ` limit ` + strconv.Itoa(limit)
	}
	return s.querySubmissions(ctx, query)
}

func (s *Store) ListStudentSubmissions(ctx context.Context, studentID string) ([]*contest.Submission, error) {
	return s.querySubmissions(ctx, submissionSelect+` where s.student_id = $1 order by s.created_at desc, s.id desc`, studentID)
}

func (s *Store) UpdateSubmissionStatus(ctx context.Context, id string, status contest.SubmissionStatus) error {
	return s.execOne(ctx, contest.ErrNotFound, `update submissions set status = $2 where id = $1`, id, string(status))
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	return s.execOne(ctx, contest.ErrNotFound, `delete from submissions where id = $1`, id)
}

func (s *Store) CountSubmissions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from submissions`).Scan(&n)
	return n, err
}

func (s *Store) InsertWinner(ctx context.Context, w *contest.Winner) error {
	_, err := s.db.ExecContext(ctx, `
		insert into winners (id, competition_id, student_name, school, media_path, highlight_text, created_at)
		values ($1, nullif($2, ''), $3, $4, $5, $6, $7)`,
		w.ID, w.CompetitionID, w.StudentName, w.School, w.MediaPath, w.HighlightText, w.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert winner: %w", err)
	}
	return nil
}

func (s *Store) ListWinners(ctx context.Context, limit int) ([]*contest.Winner, error) {
	query := `
		select w.id, coalesce(w.competition_id, ''), w.student_name, w.school, w.media_path,
			w.highlight_text, w.created_at, coalesce(c.title, '')
		from winners w
		left join competitions c on c.id = w.competition_id
		order by w.created_at desc, w.id desc`
	if limit > 0 {
		query += ` limit ` + strconv.Itoa(limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*contest.Winner
	for rows.Next() {
		var w contest.Winner
		if err := rows.Scan(&w.ID, &w.CompetitionID, &w.StudentName, &w.School, &w.MediaPath,
			&w.HighlightText, &w.CreatedAt, &w.CompetitionTitle); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWinner(ctx context.Context, id string) error {
	return s.execOne(ctx, contest.ErrNotFound, `delete from winners where id = $1`, id)
}

func (s *Store) GetSettings(ctx context.Context) (*contest.Settings, error) {
	var st contest.Settings
	var features []byte
	err := s.db.QueryRowContext(ctx,
		`select logo_path, affiliate_text, about_content, features from site_settings where id = 1`).
		Scan(&st.LogoPath, &st.AffiliateText, &st.AboutContent, &features)
	if errors.Is(err, sql.ErrNoRows) {
		return &contest.Settings{Features: map[string]bool{}}, nil
	}
	if err != nil {
		return nil, err
	}
	st.Features = map[string]bool{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &st.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	return &st, nil
}

func (s *Store) UpdateSettings(ctx context.Context, p contest.SettingsPatch) error {
	var features []byte
	if p.Features != nil {
		data, err := json.Marshal(p.Features)
		if err != nil {
			return err
		}
		features = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into site_settings (id) values (1) on conflict (id) do nothing`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		update site_settings
		set affiliate_text = coalesce($1, affiliate_text),
			about_content = coalesce($2, about_content),
			features = coalesce($3::jsonb, features),
			logo_path = coalesce($4, logo_path)
		where id = 1`,
		nullString(p.AffiliateText), nullString(p.AboutContent), nullBytes(features), nullString(p.LogoPath))
	return err
}

func (s *Store) SetFeature(ctx context.Context, key string, enabled bool) error {
	return s.execOne(ctx, contest.ErrNotFound, `
		update site_settings
		set features = jsonb_set(features, array[$1]::text[], to_jsonb($2::boolean), true)
		where id = 1`, key, enabled)
}

func nullBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
