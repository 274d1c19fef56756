package classification

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DefaultClassLabel is returned by ResolveClass when no band contains the score.
const DefaultClassLabel = "MINIMOS"

// Option is one selectable answer of a question and the points it is worth.
type Option struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Question is a single scored item of a classification questionnaire.
type Question struct {
	Key     string   `json:"key"`
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// Band maps an inclusive score range to a care-intensity class label.
type Band struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	ClassLabel string  `json:"class_label"`
}

func (b Band) contains(total float64) bool {
	return b.Min <= total && total <= b.Max
}

// Method is a patient classification questionnaire (SCP). Questions and bands
// keep the order in which they were authored.
type Method struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Bands     []Band     `json:"bands"`
}

// ResolveClass returns the label of the first band, in list order, whose
// range contains total. Overlapping bands therefore resolve to the earlier one.
func (m *Method) ResolveClass(total float64) string {
	if m == nil {
		return DefaultClassLabel
	}
	for _, b := range m.Bands {
		if b.contains(total) {
			return b.ClassLabel
		}
	}
	return DefaultClassLabel
}

// QuestionKeys returns the question keys in questionnaire order.
func (m *Method) QuestionKeys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.Questions))
	for _, q := range m.Questions {
		keys = append(keys, q.Key)
	}
	return keys
}

// Question looks up a question by key.
func (m *Method) Question(key string) (*Question, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Questions {
		if m.Questions[i].Key == key {
			return &m.Questions[i], true
		}
	}
	return nil, false
}

// ScoreRange returns the lowest and highest totals a fully answered
// questionnaire can reach.
func (m *Method) ScoreRange() (lo, hi float64) {
	if m == nil {
		return 0, 0
	}
	for _, q := range m.Questions {
		if len(q.Options) == 0 {
			continue
		}
		qlo, qhi := math.Inf(1), math.Inf(-1)
		for _, o := range q.Options {
			qlo = math.Min(qlo, o.Value)
			qhi = math.Max(qhi, o.Value)
		}
		lo += qlo
		hi += qhi
	}
	return lo, hi
}

// Lint reports authoring problems in the band table: inverted ranges,
// overlaps, and integer scores of the achievable range no band covers.
// Classification still works on a method with findings.
func (m *Method) Lint() []string {
	if m == nil {
		return nil
	}
	var findings []string
	for i, b := range m.Bands {
		if b.Min > b.Max {
			findings = append(findings, fmt.Sprintf("band %d (%s): min %g greater than max %g", i, b.ClassLabel, b.Min, b.Max))
		}
		for j := 0; j < i; j++ {
			prev := m.Bands[j]
			if b.Min <= prev.Max && prev.Min <= b.Max {
				findings = append(findings, fmt.Sprintf("band %d (%s) overlaps band %d (%s); band %d wins", i, b.ClassLabel, j, prev.ClassLabel, j))
			}
		}
	}
	if len(m.Bands) == 0 || len(m.Questions) == 0 {
		return findings
	}

	lo, hi := m.ScoreRange()
	if gaps := uncovered(math.Ceil(lo), math.Floor(hi), m.Bands); len(gaps) > 0 {
		findings = append(findings, fmt.Sprintf("scores %s are not covered by any band and classify as %s", strings.Join(gaps, ", "), DefaultClassLabel))
	}
	return findings
}

// uncovered sweeps the integer scores from lo to hi against the bands sorted
// by their first integer point. It walks intervals, not points, so wide score
// ranges cost no more than narrow ones.
func uncovered(lo, hi float64, bands []Band) []string {
	type span struct{ from, to float64 }
	spans := make([]span, 0, len(bands))
	for _, b := range bands {
		from, to := math.Ceil(b.Min), math.Floor(b.Max)
		if from <= to {
			spans = append(spans, span{from, to})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })

	var gaps []string
	add := func(from, to float64) {
		if from == to {
			gaps = append(gaps, fmt.Sprintf("%g", from))
			return
		}
		gaps = append(gaps, fmt.Sprintf("%g-%g", from, to))
	}
	next := lo
	for _, sp := range spans {
		if next > hi {
			break
		}
		if sp.from > next {
			add(next, math.Min(sp.from-1, hi))
		}
		if sp.to+1 > next {
			next = sp.to + 1
		}
	}
	if next <= hi {
		add(next, hi)
	}
	return gaps
}
