package contest

import (
	"context"
	"sort"
	"sync"
)

// StudentLookup resolves display fields for joined listings.
type StudentLookup func(ctx context.Context, studentID string) (name, email string)

// InMemory implements every contest store for tests and local runs.
type InMemory struct {
	mu           sync.RWMutex
	competitions map[string]*Competition
	submissions  map[string]*Submission
	winners      map[string]*Winner
	settings     Settings
	students     StudentLookup
}

// NewInMemory returns an empty store with default settings.
func NewInMemory(students StudentLookup) *InMemory {
	return &InMemory{
		competitions: make(map[string]*Competition),
		submissions:  make(map[string]*Submission),
		winners:      make(map[string]*Winner),
		settings:     Settings{Features: map[string]bool{}},
		students:     students,
	}
}

var (
	_ CompetitionStore = (*InMemory)(nil)
	_ SubmissionStore  = (*InMemory)(nil)
	_ WinnerStore      = (*InMemory)(nil)
	_ SettingsStore    = (*InMemory)(nil)
)

func (m *InMemory) InsertCompetition(_ context.Context, c *Competition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.competitions[c.ID] = &cp
	return nil
}

func (m *InMemory) GetCompetition(_ context.Context, id string) (*Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitions[id]
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *InMemory) ListCompetitions(_ context.Context, f CompetitionFilter) ([]*Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Competition
	for _, c := range m.competitions {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Status == StatusActive {
			a, b := out[i].StartDate, out[j].StartDate
			if a != nil && b != nil && !a.Equal(*b) {
				return a.After(*b)
			}
			if (a == nil) != (b == nil) {
				return a != nil
			}
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *InMemory) UpdateCompetition(_ context.Context, id string, p CompetitionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitions[id]
	if !ok {
		return ErrCompetitionNotFound
	}
	p.Apply(c)
	return nil
}

func (m *InMemory) DeleteCompetition(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.competitions[id]; !ok {
		return ErrCompetitionNotFound
	}
	delete(m.competitions, id)
	for sid, s := range m.submissions {
		if s.CompetitionID == id {
			delete(m.submissions, sid)
		}
	}
	for _, w := range m.winners {
		if w.CompetitionID == id {
			w.CompetitionID = ""
		}
	}
	return nil
}

func (m *InMemory) CountCompetitions(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.competitions), nil
}

func (m *InMemory) InsertSubmission(_ context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.competitions[s.CompetitionID]; !ok {
		return ErrCompetitionNotFound
	}
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *InMemory) ListSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	return m.listSubmissions(ctx, "", limit), nil
}

func (m *InMemory) ListStudentSubmissions(ctx context.Context, studentID string) ([]*Submission, error) {
	return m.listSubmissions(ctx, studentID, 0), nil
}

func (m *InMemory) listSubmissions(ctx context.Context, studentID string, limit int) []*Submission {
	m.mu.RLock()
	var out []*Submission
	for _, s := range m.submissions {
		if studentID != "" && s.StudentID != studentID {
			continue
		}
		cp := *s
		if c, ok := m.competitions[s.CompetitionID]; ok {
			cp.CompetitionTitle = c.Title
		}
		out = append(out, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if m.students != nil {
		for _, s := range out {
			s.StudentName, s.StudentEmail = m.students(ctx, s.StudentID)
		}
	}
	return out
}

func (m *InMemory) UpdateSubmissionStatus(_ context.Context, id string, status SubmissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	return nil
}

func (m *InMemory) DeleteSubmission(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[id]; !ok {
		return ErrNotFound
	}
	delete(m.submissions, id)
	return nil
}

func (m *InMemory) CountSubmissions(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.submissions), nil
}

func (m *InMemory) InsertWinner(_ context.Context, w *Winner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.CompetitionID != "" {
		if _, ok := m.competitions[w.CompetitionID]; !ok {
			return ErrCompetitionNotFound
		}
	}
	cp := *w
	m.winners[w.ID] = &cp
	return nil
}

func (m *InMemory) ListWinners(_ context.Context, limit int) ([]*Winner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Winner, 0, len(m.winners))
	for _, w := range m.winners {
		cp := *w
		if c, ok := m.competitions[w.CompetitionID]; ok {
			cp.CompetitionTitle = c.Title
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *InMemory) DeleteWinner(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.winners[id]; !ok {
		return ErrNotFound
	}
	delete(m.winners, id)
	return nil
}

func (m *InMemory) GetSettings(_ context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.settings
	s.Features = copyFeatures(m.settings.Features)
	return &s, nil
}

func (m *InMemory) UpdateSettings(_ context.Context, p SettingsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Apply(&m.settings)
	return nil
}

func (m *InMemory) SetFeature(_ context.Context, key string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings.Features == nil {
		m.settings.Features = map[string]bool{}
	}
	m.settings.Features[key] = enabled
	return nil
}
