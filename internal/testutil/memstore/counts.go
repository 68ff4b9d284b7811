package memstore

import (
	"context"
	"slices"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/counting"
)

// Counts implements counting.Repository.
type Counts struct{ s *Store }

var _ counting.Repository = (*Counts)(nil)

// Create implements counting.Repository.
func (r *Counts) Create(ctx context.Context, sess *counting.Session) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.state.sessions {
		if existing.Code == sess.Code {
			return apperror.NewDuplicate("count session", "code", sess.Code)
		}
	}
	r.s.state.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// Update implements counting.Repository. Stored stats are kept.
func (r *Counts) Update(ctx context.Context, sess *counting.Session) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.sessions[sess.ID]
	if !ok {
		return apperror.NewNotFound("count session", sess.ID.String())
	}
	if stored.Version != sess.Version {
		return apperror.NewConcurrentModification("count session", sess.ID.String())
	}
	sess.Version++
	cp := cloneSession(sess)
	cp.Stats = stored.Stats
	r.s.state.sessions[sess.ID] = cp
	return nil
}

func (r *Counts) get(sessionID id.ID) (*counting.Session, error) {
	sess, ok := r.s.state.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("count session", sessionID.String())
	}
	return cloneSession(sess), nil
}

// GetByID implements counting.Repository.
func (r *Counts) GetByID(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	defer r.s.lock(ctx)()
	return r.get(sessionID)
}

// GetForUpdate implements counting.Repository.
func (r *Counts) GetForUpdate(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	defer r.s.lock(ctx)()
	return r.get(sessionID)
}

// GetForShare implements counting.Repository.
func (r *Counts) GetForShare(ctx context.Context, sessionID id.ID) (*counting.Session, error) {
	defer r.s.lock(ctx)()
	return r.get(sessionID)
}

// List implements counting.Repository. Newest first.
func (r *Counts) List(ctx context.Context, f counting.ListFilter) (domain.ListResult[*counting.Session], error) {
	defer r.s.lock(ctx)()
	var out []*counting.Session
	for _, sess := range r.s.state.sessions {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sess.Status) {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, sess.Type) {
			continue
		}
		if !f.Created.Contains(sess.CreatedAt) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(sess.Code), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	slices.SortFunc(out, func(a, b *counting.Session) int { return strings.Compare(b.Code, a.Code) })
	return page(out, f.ListFilter), nil
}

// ApplyStatsDelta implements counting.Repository.
func (r *Counts) ApplyStatsDelta(ctx context.Context, sessionID id.ID, delta counting.Stats) error {
	defer r.s.lock(ctx)()
	sess, ok := r.s.state.sessions[sessionID]
	if !ok {
		return apperror.NewNotFound("count session", sessionID.String())
	}
	sess.Stats = sess.Stats.Add(delta)
	return nil
}

// SetStats implements counting.Repository.
func (r *Counts) SetStats(ctx context.Context, sessionID id.ID, stats counting.Stats) error {
	defer r.s.lock(ctx)()
	sess, ok := r.s.state.sessions[sessionID]
	if !ok {
		return apperror.NewNotFound("count session", sessionID.String())
	}
	sess.Stats = stats
	return nil
}

// InsertLines implements counting.Repository.
func (r *Counts) InsertLines(ctx context.Context, lines []*counting.Line) error {
	defer r.s.lock(ctx)()
	for _, l := range lines {
		cp := *l
		r.s.state.lines[l.ID] = &cp
	}
	return nil
}

// GetLineForUpdate implements counting.Repository.
func (r *Counts) GetLineForUpdate(ctx context.Context, sessionID, lineID id.ID) (*counting.Line, error) {
	defer r.s.lock(ctx)()
	l, ok := r.s.state.lines[lineID]
	if !ok || l.SessionID != sessionID {
		return nil, apperror.NewNotFound("count line", lineID.String())
	}
	cp := *l
	return &cp, nil
}

// FindLineForUpdate implements counting.Repository.
func (r *Counts) FindLineForUpdate(ctx context.Context, sessionID, itemID id.ID, locationCode, lot string) (*counting.Line, error) {
	defer r.s.lock(ctx)()
	for _, l := range r.s.state.lines {
		if l.SessionID == sessionID && l.ItemID == itemID && l.LocationCode == locationCode && l.Lot == lot {
			cp := *l
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("count line", itemID.String()+"@"+locationCode)
}

// UpdateLine implements counting.Repository.
func (r *Counts) UpdateLine(ctx context.Context, line *counting.Line, expectedVersion int) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.state.lines[line.ID]
	if !ok {
		return apperror.NewNotFound("count line", line.ID.String())
	}
	if stored.Version != expectedVersion {
		return apperror.NewConcurrentModification("count line", line.ID.String())
	}
	line.Version = expectedVersion + 1
	cp := *line
	r.s.state.lines[line.ID] = &cp
	return nil
}

func (r *Counts) sessionLines(sessionID id.ID) []*counting.Line {
	var out []*counting.Line
	for _, l := range r.s.state.lines {
		if l.SessionID == sessionID {
			cp := *l
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *counting.Line) int { return a.LineNo - b.LineNo })
	return out
}

// ListLines implements counting.Repository.
func (r *Counts) ListLines(ctx context.Context, sessionID id.ID, f counting.LineFilter) (domain.ListResult[*counting.Line], error) {
	defer r.s.lock(ctx)()
	var out []*counting.Line
	for _, l := range r.sessionLines(sessionID) {
		if f.LocationCode != "" && l.LocationCode != f.LocationCode {
			continue
		}
		if f.ItemID != nil && l.ItemID != *f.ItemID {
			continue
		}
		if f.Counted != nil && l.IsCounted() != *f.Counted {
			continue
		}
		if f.Discrepancies && !l.IsDiscrepancy {
			continue
		}
		if f.Recount && !l.Recount {
			continue
		}
		out = append(out, l)
	}
	return page(out, f.ListFilter), nil
}

// AllLines implements counting.Repository.
func (r *Counts) AllLines(ctx context.Context, sessionID id.ID) ([]*counting.Line, error) {
	defer r.s.lock(ctx)()
	return r.sessionLines(sessionID), nil
}

// Uncounted implements counting.Repository.
func (r *Counts) Uncounted(ctx context.Context, sessionID id.ID, limit int) (int, []int, error) {
	defer r.s.lock(ctx)()
	n := 0
	var nos []int
	for _, l := range r.sessionLines(sessionID) {
		if l.IsCounted() {
			continue
		}
		n++
		if len(nos) < limit {
			nos = append(nos, l.LineNo)
		}
	}
	return n, nos, nil
}
