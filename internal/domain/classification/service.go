package classification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoMethod is returned when neither the unit nor its hospital references a
// classification method.
var ErrNoMethod = errors.New("no classification method configured for unit")

// Resolver finds the classification method that governs a care unit.
// Loaded methods are memoized by reference; they are static definitions.
type Resolver struct {
	src    Source
	logger zerolog.Logger

	mu      sync.RWMutex
	methods map[string]*Method
}

func NewResolver(src Source, logger zerolog.Logger) *Resolver {
	return &Resolver{
		src:     src,
		logger:  logger,
		methods: make(map[string]*Method),
	}
}

// Method returns the method identified by id or key.
func (r *Resolver) Method(ctx context.Context, ref string) (*Method, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("method reference is required")
	}

	r.mu.RLock()
	m, ok := r.methods[ref]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := r.src.GetClassificationMethod(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get classification method %s: %w", ref, err)
	}
	for _, finding := range m.Lint() {
		r.logger.Warn().Str("method_key", m.Key).Msg(finding)
	}

	r.mu.Lock()
	r.methods[ref] = m
	r.mu.Unlock()
	return m, nil
}

// MethodForUnit resolves the unit's own method reference, falling back to the
// hospital's when the unit has none.
func (r *Resolver) MethodForUnit(ctx context.Context, unitID string) (*Method, error) {
	unit, err := r.src.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", unitID, err)
	}

	ref := strings.TrimSpace(unit.ClassificationMethodRef)
	if ref == "" && unit.HospitalID != "" {
		hospital, err := r.src.GetHospital(ctx, unit.HospitalID)
		if err != nil {
			return nil, fmt.Errorf("get hospital %s: %w", unit.HospitalID, err)
		}
		ref = strings.TrimSpace(hospital.ClassificationMethodRef)
	}
	if ref == "" {
		return nil, ErrNoMethod
	}
	return r.Method(ctx, ref)
}
