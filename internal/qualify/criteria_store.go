package qualify

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// CriteriaStore holds the live criteria as an immutable snapshot swapped on update.
// Readers never see a half-applied patch.
type CriteriaStore struct {
	cur atomic.Pointer[models.QualificationCriteria]
	mu  sync.Mutex // serializes writers
}

// NewCriteriaStore validates initial and installs it as the first snapshot.
func NewCriteriaStore(initial models.QualificationCriteria) (*CriteriaStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial criteria: %w", err)
	}
	s := &CriteriaStore{}
	c := initial.Clone()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	s.cur.Store(&c)
	return s, nil
}

// Snapshot returns a copy of the current criteria.
func (s *CriteriaStore) Snapshot() models.QualificationCriteria {
	return s.cur.Load().Clone()
}

// Update applies patch on top of the current snapshot and swaps it in.
// The previous snapshot stays in place when the result is invalid.
func (s *CriteriaStore) Update(patch models.CriteriaPatch) (models.QualificationCriteria, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(*s.cur.Load())
	if err := next.Validate(); err != nil {
		return s.cur.Load().Clone(), err
	}
	next.UpdatedAt = time.Now()
	s.cur.Store(&next)
	slog.Info("CriteriaStore.Update: criteria updated",
		"min_experience", next.MinExperience, "min_ctc", next.MinCTC, "max_ctc", next.MaxCTC,
		"max_notice_days", next.MaxNoticeDays, "min_incentive", next.MinIncentive,
		"allowed_products", len(next.AllowedProducts))
	return next.Clone(), nil
}
