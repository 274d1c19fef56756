package staffing

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// DefaultStandardWeeklyHours is the weekly labor hours of one professional
// used by the quota formula.
const DefaultStandardWeeklyHours = 36

// Engine computes staffing results. It does no I/O.
type Engine struct {
	hours       HourConstants
	weeklyHours float64
	now         func() time.Time
}

func NewEngine(hours HourConstants, standardWeeklyHours float64) *Engine {
	if standardWeeklyHours <= 0 {
		standardWeeklyHours = DefaultStandardWeeklyHours
	}
	return &Engine{
		hours:       hours.Or(DefaultHours),
		weeklyHours: standardWeeklyHours,
		now:         time.Now,
	}
}

// Hours returns the configured per-level constants.
func (e *Engine) Hours() HourConstants { return e.hours }

// Validate reports every input that blocks the computation.
func Validate(p Parameters) error {
	ve := &ValidationError{}
	if strings.TrimSpace(p.NurseName) == "" {
		ve.add("nurse_name", "nurse name is required")
	}
	if strings.TrimSpace(p.RegistrationNumber) == "" {
		ve.add("registration_number", "registration number is required")
	}
	if p.NurseWeeklyHours <= 0 {
		ve.add("nurse_weekly_hours", "must be greater than zero")
	}
	if p.TechnicianWeeklyHours <= 0 {
		ve.add("technician_weekly_hours", "must be greater than zero")
	}
	if p.SafetyIndex <= 0 {
		ve.add("safety_index", "must be greater than zero")
	}
	if p.Beds <= 0 {
		ve.add("beds", "must be greater than zero")
	}
	if p.OccupancyRate == nil {
		ve.add("occupancy_rate", "occupancy rate is required")
	}
	if p.DaysPerWeek <= 0 {
		ve.add("days_per_week", "must be greater than zero")
	}
	c := p.Counts
	if c.Minimal < 0 || c.Intermediate < 0 || c.HighDependency < 0 || c.SemiIntensive < 0 || c.Intensive < 0 {
		ve.add("counts", "patient counts cannot be negative")
	} else if c.Total() == 0 {
		ve.add("counts", "at least one care level needs patients")
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// Compute validates p and dimensions the nursing staff.
func (e *Engine) Compute(p Parameters) (*Result, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	p.Hours = p.Hours.Or(e.hours)

	the := TotalHours(p.Counts, p.Hours)
	k := SafetyConstant(p.Restricted, float64(p.Beds), p.SafetyIndex)
	ist := p.SafetyIndex / 100

	qpReal := the * p.DaysPerWeek * (1 + ist) / e.weeklyHours
	qp := qpReal
	if k > 0 {
		qp = qpReal * (1 + k)
	}

	nurseShare, dominant := NurseShare(p.Counts)
	headline := round(qp, 2)
	nurseQuota := round(qp*nurseShare, 2)

	return &Result{
		THE:             round(the, 2),
		QPReal:          round(qpReal, 2),
		QP:              headline,
		SafetyConstant:  round(k, 4),
		NurseShare:      round(nurseShare*100, 2),
		TechnicianShare: round((1-nurseShare)*100, 2),
		NurseQuota:      nurseQuota,
		TechnicianQuota: round(headline-nurseQuota, 2),
		Dominant:        dominant,
		Parameters:      p,
		ComputedAt:      e.now().UTC(),
	}, nil
}

// TotalHours is the additive nursing-hour demand (THE).
func TotalHours(c Counts, h HourConstants) float64 {
	return float64(c.Minimal)*h.Minimal +
		float64(c.Intermediate)*h.Intermediate +
		float64(c.HighDependency)*h.HighDependency +
		float64(c.SemiIntensive)*h.SemiIntensive +
		float64(c.Intensive)*h.Intensive
}

// SafetyConstant is the Marinho constant. Two sequential divisions.
func SafetyConstant(restricted Restriction, beds, safetyIndex float64) float64 {
	if !restricted {
		return 0
	}
	ist := safetyIndex / 100
	return (beds * 0.8) / (beds * (1 + ist)) / (beds*0.1 + ist)
}

// DominantLow names the combined minimal and intermediate bucket.
const DominantLow = "minimal_intermediate"

// NurseShare picks the nurse fraction from the dominant bucket. The rules
// are checked in order and the first match wins, so ties resolve to the
// lower share.
func NurseShare(c Counts) (float64, string) {
	low := c.Minimal + c.Intermediate
	hd, si, in := c.HighDependency, c.SemiIntensive, c.Intensive
	switch {
	case low >= hd && low >= si && low >= in:
		return 0.33, DominantLow
	case hd > low && hd >= si && hd >= in:
		return 0.37, string(LevelHighDependency)
	case si > low && si > hd && si >= in:
		return 0.42, string(LevelSemiIntensive)
	default:
		return 0.52, string(LevelIntensive)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

var accents = strings.NewReplacer(
	"Á", "A", "À", "A", "Â", "A", "Ã", "A",
	"É", "E", "Ê", "E",
	"Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O",
	"Ú", "U", "Ç", "C",
)

// LevelForClass maps a classification label to a care level.
func LevelForClass(label string) (CareLevel, bool) {
	up := accents.Replace(strings.ToUpper(strings.TrimSpace(label)))
	key := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, up)
	switch key {
	case "MINIMO", "MINIMOS", "MINIMAL":
		return LevelMinimal, true
	case "INTERMEDIARIO", "INTERMEDIARIOS", "INTERMEDIATE":
		return LevelIntermediate, true
	case "ALTADEPENDENCIA", "HIGHDEPENDENCY":
		return LevelHighDependency, true
	case "SEMIINTENSIVO", "SEMIINTENSIVOS", "SEMIINTENSIVE":
		return LevelSemiIntensive, true
	case "INTENSIVO", "INTENSIVOS", "INTENSIVE":
		return LevelIntensive, true
	}
	return "", false
}

// CensusFromClasses counts class labels per care level. Labels that map to no
// level are returned apart.
func CensusFromClasses(labels []string) (Counts, []string) {
	var c Counts
	var unknown []string
	for _, l := range labels {
		level, ok := LevelForClass(l)
		if !ok {
			unknown = append(unknown, l)
			continue
		}
		c.Add(level)
	}
	return c, unknown
}
