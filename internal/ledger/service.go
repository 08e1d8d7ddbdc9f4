// Package ledger is the only writer of visit records. It validates
// submissions, assigns the daily ordinal and tells subscribers that the
// record set changed.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// Store is the durable record set the service writes to.
type Store interface {
	Counter
	Insert(ctx context.Context, rec *visit.Record) (*visit.Record, error)
	Get(ctx context.Context, id string) (*visit.Record, error)
	Update(ctx context.Context, rec *visit.Record) error
	Delete(ctx context.Context, id string) error
	ListByPerson(ctx context.Context, firstName, lastName string) ([]visit.Record, error)
}

// Notifier is told after every successful mutation.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Recorder receives mutation outcomes for metrics.
type Recorder interface {
	VisitCreated(class visit.Class, weight int)
	MutationFailed(op string)
}

// Service validates and applies create, update and delete requests.
type Service struct {
	store    Store
	assigner *Assigner
	notifier Notifier
	recorder Recorder
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a mutation service. notifier may be nil.
func NewService(store Store, notifier Notifier, loc *time.Location, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		assigner: NewAssigner(store),
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock that decides "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRecorder attaches a metrics recorder.
func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

// Today returns today's visit date in the service's location.
func (s *Service) Today() string {
	return visit.FormatDate(s.now(), s.loc)
}

// Create records a new check-in dated today.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*visit.Record, error) {
	req = req.normalize()
	if err := validateCreate(req); err != nil {
		s.failed("create")
		return nil, err
	}

	rec := req.record()
	rec.VisitDate = s.Today()

	seq, err := s.assigner.Next(ctx, rec.VisitDate)
	if err != nil {
		s.failed("create")
		return nil, err
	}
	rec.Sequence = seq

	saved, err := s.store.Insert(ctx, rec)
	if err != nil {
		s.failed("create")
		return nil, fmt.Errorf("saving visit: %w", err)
	}

	if s.recorder != nil {
		s.recorder.VisitCreated(saved.Class, saved.Weight())
	}
	s.logger.Info("visit recorded",
		zap.String("id", saved.ID),
		zap.String("visit_date", saved.VisitDate),
		zap.Int("sequence", saved.Sequence),
		zap.Int("weight", saved.Weight()),
	)
	s.notify(ctx)
	return saved, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*visit.Record, error) {
	return s.store.Get(ctx, id)
}

// Update applies a partial change to an existing record. The ordinal,
// id and creation time are kept; updated_at is stamped.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*visit.Record, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		s.failed("update")
		return nil, err
	}

	next := req.apply(*cur)
	if err := validateRecord(next, req.VisitDate != nil); err != nil {
		s.failed("update")
		return nil, err
	}
	next.Class, _ = visit.ParseClass(string(next.Class))
	normalizeBranch(&next)

	now := s.now().UTC()
	next.ID = cur.ID
	next.Sequence = cur.Sequence
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = &now

	if err := s.store.Update(ctx, &next); err != nil {
		s.failed("update")
		return nil, err
	}

	s.logger.Info("visit updated", zap.String("id", id))
	s.notify(ctx)
	return &next, nil
}

// Delete removes a record permanently. Confirmation is the caller's job.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		s.failed("delete")
		return err
	}

	s.logger.Info("visit deleted", zap.String("id", id))
	s.notify(ctx)
	return nil
}

// Lookup returns one visitor's own history by exact first and last name.
func (s *Service) Lookup(ctx context.Context, firstName, lastName string) ([]visit.Record, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	fields := map[string]string{}
	if firstName == "" {
		fields["first_name"] = "first_name is required"
	}
	if lastName == "" {
		fields["last_name"] = "last_name is required"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	return s.store.ListByPerson(ctx, firstName, lastName)
}

// notify tells subscribers the set changed. The write already succeeded,
// so a failed notification is logged and not returned.
func (s *Service) notify(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx); err != nil {
		s.logger.Warn("change notification failed", zap.Error(err))
	}
}

func (s *Service) failed(op string) {
	if s.recorder != nil {
		s.recorder.MutationFailed(op)
	}
}
