package evaluation

import (
	"context"
	"encoding/json"
	"math"
	"testing"
)

func TestItems_UnmarshalJSON_Tolerant(t *testing.T) {
	var it Items
	if err := json.Unmarshal([]byte(`{"Q1": 3, "Q2": "2", "Q3": "abc", "Q4": null, "Q5": true}`), &it); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]float64{"Q1": 3, "Q2": 2, "Q3": 0, "Q4": 0, "Q5": 0}
	if len(it) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(it))
	}
	for k, v := range want {
		got, ok := it[k]
		if !ok {
			t.Errorf("expected key %s to be kept", k)
			continue
		}
		if got != v {
			t.Errorf("%s: expected %v, got %v", k, v, got)
		}
	}
}

func TestItems_UnmarshalJSON_Null(t *testing.T) {
	it := Items{"Q1": 1}
	if err := json.Unmarshal([]byte(`null`), &it); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it != nil {
		t.Errorf("expected nil items, got %v", it)
	}
}

func TestItems_UnmarshalJSON_NotObject(t *testing.T) {
	var it Items
	if err := json.Unmarshal([]byte(`[1,2]`), &it); err == nil {
		t.Error("expected error for a non-object payload")
	}
}

func TestComputeTotal(t *testing.T) {
	tests := []struct {
		name  string
		items Items
		want  float64
	}{
		{"empty", nil, 0},
		{"sum", Items{"a": 1, "b": 2, "c": 4}, 7},
		{"fractional", Items{"a": 0.5, "b": 1.25}, 1.75},
		{"non finite ignored", Items{"a": 2, "b": math.NaN(), "c": math.Inf(1)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTotal(tt.items); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComputeTotal_OrderIndependent(t *testing.T) {
	items := Items{}
	for i, v := range []float64{4, 1, 3, 2, 4, 1, 2, 3, 4} {
		items[string(rune('A'+i))] = v
	}
	first := ComputeTotal(items)
	for i := 0; i < 20; i++ {
		if got := ComputeTotal(items.Clone()); got != first {
			t.Fatalf("expected %v on every run, got %v", first, got)
		}
	}
	if first != 24 {
		t.Errorf("expected 24, got %v", first)
	}
}

func TestSession_Clone(t *testing.T) {
	s := &Session{ID: "s1", Items: Items{"Q1": 1}, Author: &Author{ID: "a"}}
	cp := s.Clone()
	cp.Items["Q1"] = 9
	cp.Author.ID = "b"
	if s.Items["Q1"] != 1 || s.Author.ID != "a" {
		t.Error("clone must not share items or author")
	}
}

func TestSession_IsActive(t *testing.T) {
	if !(&Session{Status: " active "}).IsActive() {
		t.Error("expected normalized status to be active")
	}
	if (&Session{Status: StatusReleased}).IsActive() {
		t.Error("released session must not be active")
	}
	var s *Session
	if s.IsActive() {
		t.Error("nil session must not be active")
	}
}

func TestRecordPolicy_Check(t *testing.T) {
	p := RecordPolicy{Required: true, MinLength: 3}
	if err := p.Check("12"); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := p.Check("  12  "); !IsValidation(err) {
		t.Errorf("expected whitespace to be trimmed, got %v", err)
	}
	if err := p.Check("123"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (RecordPolicy{MinLength: 3}).Check(""); err != nil {
		t.Errorf("optional policy must accept empty values, got %v", err)
	}
}

func TestParseEntryPoint(t *testing.T) {
	tests := []struct {
		in      string
		want    EntryPoint
		wantErr bool
	}{
		{"", EntryEvaluation, false},
		{"evaluation", EntryEvaluation, false},
		{"DETAILS", EntryDetails, false},
		{"modal", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEntryPoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: unexpected error state %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestMemoryJournal_NewestFirst(t *testing.T) {
	eng, _, _ := newTestEngine()
	j := eng.Journal()
	ctx := context.Background()
	for i, action := range []string{ActionCreated, ActionOverwritten, ActionReleased} {
		e := &JournalEntry{SessionID: "s1", UnitID: "u1", BedID: "b1", Action: action}
		e.RecordedAt = e.RecordedAt.AddDate(0, 0, i)
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	items, total, err := j.ListByBed(ctx, "u1", "b1", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3 entries, got %d of %d", len(items), total)
	}
	if items[0].Action != ActionReleased {
		t.Errorf("expected newest entry first, got %s", items[0].Action)
	}
	items, _, _ = j.ListBySession(ctx, "s1", 10, 5)
	if len(items) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(items))
	}
}
