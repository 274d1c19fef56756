package staffing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Saver persists computed results in the records service.
type Saver interface {
	SaveStaffingResult(ctx context.Context, unitID string, r *Result) (string, error)
}

// Saved is a result the records service accepted.
type Saved struct {
	ID     string  `json:"id"`
	Result *Result `json:"result"`
}

type Service struct {
	engine *Engine
	saver  Saver
	logger zerolog.Logger
}

func NewService(engine *Engine, saver Saver, logger zerolog.Logger) *Service {
	return &Service{engine: engine, saver: saver, logger: logger}
}

func (s *Service) Engine() *Engine { return s.engine }

// Preview computes without saving.
func (s *Service) Preview(p Parameters) (*Result, error) {
	return s.engine.Compute(p)
}

// Dimension computes and saves. A failed save returns a *PersistenceError
// holding the result; computation failures never reach the records service.
func (s *Service) Dimension(ctx context.Context, unitID string, p Parameters) (*Saved, error) {
	r, err := s.engine.Compute(p)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, unitID, r)
}

// Save persists a result handed back by a client, typically after a failed
// save. The figures are recomputed from its parameters and only the
// recomputed ones are stored, so a retry saves what the engine produced.
func (s *Service) Save(ctx context.Context, unitID string, r *Result) (*Saved, error) {
	if r == nil {
		return nil, errors.New("no result to save")
	}
	fresh, err := s.engine.Compute(r.Parameters)
	if err != nil {
		return nil, err
	}
	if !r.ComputedAt.IsZero() {
		fresh.ComputedAt = r.ComputedAt.UTC()
	}
	if !sameFigures(r, fresh) {
		s.logger.Warn().
			Str("unit_id", unitID).
			Float64("submitted_qp", r.QP).
			Float64("qp", fresh.QP).
			Msg("submitted staffing figures differ from the computation, saving recomputed result")
	}
	return s.persist(ctx, unitID, fresh)
}

func (s *Service) persist(ctx context.Context, unitID string, r *Result) (*Saved, error) {
	id, err := s.saver.SaveStaffingResult(ctx, unitID, r)
	if err != nil {
		s.logger.Error().Err(err).Str("unit_id", unitID).Msg("save staffing result failed")
		return nil, &PersistenceError{Result: r, Err: err}
	}
	s.logger.Info().
		Str("unit_id", unitID).
		Str("staffing_id", id).
		Float64("qp", r.QP).
		Float64("nurse_quota", r.NurseQuota).
		Float64("technician_quota", r.TechnicianQuota).
		Msg("staffing result saved")
	return &Saved{ID: id, Result: r}, nil
}

func sameFigures(a, b *Result) bool {
	return a.THE == b.THE &&
		a.QPReal == b.QPReal &&
		a.QP == b.QP &&
		a.SafetyConstant == b.SafetyConstant &&
		a.NurseShare == b.NurseShare &&
		a.TechnicianShare == b.TechnicianShare &&
		a.NurseQuota == b.NurseQuota &&
		a.TechnicianQuota == b.TechnicianQuota &&
		a.Dominant == b.Dominant
}
