package staffing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CareLevel is one of the five patient care-intensity levels.
type CareLevel string

const (
	LevelMinimal        CareLevel = "minimal"
	LevelIntermediate   CareLevel = "intermediate"
	LevelHighDependency CareLevel = "high_dependency"
	LevelSemiIntensive  CareLevel = "semi_intensive"
	LevelIntensive      CareLevel = "intensive"
)

// Levels lists the care levels in ascending intensity.
var Levels = []CareLevel{LevelMinimal, LevelIntermediate, LevelHighDependency, LevelSemiIntensive, LevelIntensive}

// HourConstants are the daily nursing hours drawn by one patient per level.
type HourConstants struct {
	Minimal        float64 `json:"minimal"`
	Intermediate   float64 `json:"intermediate"`
	HighDependency float64 `json:"high_dependency"`
	SemiIntensive  float64 `json:"semi_intensive"`
	Intensive      float64 `json:"intensive"`
}

// DefaultHours are the reference constants: 4h, 6h, 10h, 10h and 18h.
var DefaultHours = HourConstants{
	Minimal:        4,
	Intermediate:   6,
	HighDependency: 10,
	SemiIntensive:  10,
	Intensive:      18,
}

// Or fills zero fields from def.
func (h HourConstants) Or(def HourConstants) HourConstants {
	if h.Minimal <= 0 {
		h.Minimal = def.Minimal
	}
	if h.Intermediate <= 0 {
		h.Intermediate = def.Intermediate
	}
	if h.HighDependency <= 0 {
		h.HighDependency = def.HighDependency
	}
	if h.SemiIntensive <= 0 {
		h.SemiIntensive = def.SemiIntensive
	}
	if h.Intensive <= 0 {
		h.Intensive = def.Intensive
	}
	return h
}

// Counts are the classified patients per care level.
type Counts struct {
	Minimal        int `json:"minimal"`
	Intermediate   int `json:"intermediate"`
	HighDependency int `json:"high_dependency"`
	SemiIntensive  int `json:"semi_intensive"`
	Intensive      int `json:"intensive"`
}

func (c Counts) Total() int {
	return c.Minimal + c.Intermediate + c.HighDependency + c.SemiIntensive + c.Intensive
}

// Add increments the count of level.
func (c *Counts) Add(level CareLevel) {
	switch level {
	case LevelMinimal:
		c.Minimal++
	case LevelIntermediate:
		c.Intermediate++
	case LevelHighDependency:
		c.HighDependency++
	case LevelSemiIntensive:
		c.SemiIntensive++
	case LevelIntensive:
		c.Intensive++
	}
}

// Restriction is the staff-restriction flag. JSON accepts "sim"/"nao",
// "yes"/"no" and booleans.
type Restriction bool

func (r *Restriction) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*r = Restriction(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restriction must be a boolean or sim/nao: %w", err)
	}
	v, err := ParseRestriction(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (r Restriction) MarshalJSON() ([]byte, error) {
	if r {
		return []byte(`"sim"`), nil
	}
	return []byte(`"nao"`), nil
}

func ParseRestriction(s string) (Restriction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sim", "s", "yes", "y", "true":
		return true, nil
	case "nao", "não", "n", "no", "false":
		return false, nil
	default:
		return false, fmt.Errorf("unknown restriction value %q", s)
	}
}

// Parameters are the inputs of one dimensioning run.
type Parameters struct {
	NurseName             string        `json:"nurse_name"`
	RegistrationNumber    string        `json:"registration_number"`
	SafetyIndex           float64       `json:"safety_index"`
	Restricted            Restriction   `json:"restricted"`
	DaysPerWeek           float64       `json:"days_per_week"`
	Hours                 HourConstants `json:"hours"`
	NurseWeeklyHours      float64       `json:"nurse_weekly_hours"`
	TechnicianWeeklyHours float64       `json:"technician_weekly_hours"`
	Beds                  int           `json:"beds"`
	OccupancyRate         *float64      `json:"occupancy_rate"`
	Counts                Counts        `json:"counts"`
}

// Result of a dimensioning run. It is recomputed as a whole every time.
type Result struct {
	THE             float64    `json:"the"`
	QPReal          float64    `json:"qp_real"`
	QP              float64    `json:"qp"`
	SafetyConstant  float64    `json:"safety_constant"`
	NurseShare      float64    `json:"nurse_share"`
	TechnicianShare float64    `json:"technician_share"`
	NurseQuota      float64    `json:"nurse_quota"`
	TechnicianQuota float64    `json:"technician_quota"`
	Dominant        string     `json:"dominant"`
	Parameters      Parameters `json:"parameters"`
	ComputedAt      time.Time  `json:"computed_at"`
}
