package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func parts(ranges ...IDRange) []PartFile {
	out := make([]PartFile, len(ranges))
	for i, r := range ranges {
		out[i] = PartFile{Range: r, Size: 1}
	}
	return out
}

func TestFindGaps(t *testing.T) {
	tests := []struct {
		name  string
		parts []PartFile
		want  []Gap
	}{
		{
			name: "no parts",
		},
		{
			name:  "contiguous with open tail",
			parts: parts(Bounded(0, 99), Bounded(100, 199), Open(200)),
		},
		{
			name:  "hole in the middle",
			parts: parts(Bounded(0, 99), Bounded(150, 199), Open(200)),
			want:  []Gap{{From: 100, To: 149}},
		},
		{
			name:  "missing prefix",
			parts: parts(Bounded(50, 99), Open(100)),
			want:  []Gap{{From: 0, To: 49}},
		},
		{
			name:  "missing first id only",
			parts: parts(Bounded(1, 99)),
			want:  []Gap{{From: 0, To: 0}},
		},
		{
			name:  "overlap is not a gap",
			parts: parts(Bounded(0, 120), Bounded(100, 199)),
		},
		{
			name:  "several holes",
			parts: parts(Bounded(0, 9), Bounded(20, 29), Bounded(40, 49)),
			want:  []Gap{{From: 10, To: 19}, {From: 30, To: 39}},
		},
		{
			name:  "contained part does not shrink coverage",
			parts: parts(Bounded(0, 100), Bounded(10, 20), Bounded(101, 150)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindGaps(tt.parts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FindGaps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResumePoint(t *testing.T) {
	tests := []struct {
		name     string
		parts    []PartFile
		wantNext int64
		wantDone bool
	}{
		{name: "empty", wantNext: 0},
		{name: "bounded", parts: parts(Bounded(0, 99), Bounded(100, 199)), wantNext: 200},
		{name: "max end wins", parts: parts(Bounded(0, 300), Bounded(100, 199)), wantNext: 301},
		{name: "open tail", parts: parts(Bounded(0, 99), Open(100)), wantDone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, done := ResumePoint(tt.parts)
			if next != tt.wantNext || done != tt.wantDone {
				t.Errorf("ResumePoint() = (%d, %v), want (%d, %v)", next, done, tt.wantNext, tt.wantDone)
			}
		})
	}
}

func TestSortParts(t *testing.T) {
	ps := parts(Open(200), Bounded(100, 199), Bounded(0, 99))
	SortParts(ps)

	want := []int64{0, 100, 200}
	for i, p := range ps {
		if p.Range.Start != want[i] {
			t.Errorf("parts[%d].Start = %d, want %d", i, p.Range.Start, want[i])
		}
	}
	if !ps[2].Range.IsOpen() {
		t.Error("open part should sort last")
	}
}

func TestIDRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       IDRange
		wantErr bool
	}{
		{name: "bounded", r: Bounded(0, 10)},
		{name: "single id", r: Bounded(5, 5)},
		{name: "open", r: Open(0)},
		{name: "reversed", r: Bounded(10, 5), wantErr: true},
		{name: "negative", r: Bounded(-1, 5), wantErr: true},
		{name: "sentinel collision", r: Bounded(0, 0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRange) {
				t.Errorf("Validate() error = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestQuery(t *testing.T) {
	if err := (Query{}).Validate(); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("empty query Validate() = %v, want ErrInvalidQuery", err)
	}
	if err := From(3).Validate(); err != nil {
		t.Errorf("From(3).Validate() = %v", err)
	}
	if got := From(3).String(); got != "[3 - None]" {
		t.Errorf("From(3).String() = %q", got)
	}
	if got := Bounded(1, 9).Query().String(); got != "[1 - 9]" {
		t.Errorf("Bounded(1, 9).Query() = %q", got)
	}
	if q := Open(4).Query(); q.End != nil || *q.Start != 4 {
		t.Errorf("Open(4).Query() = %v, want [4 - None]", q)
	}
}

func TestMergeBlockedError(t *testing.T) {
	err := &MergeBlockedError{Gaps: []Gap{{From: 1, To: 2}}, Unterminated: true}
	if !errors.Is(err, ErrMergeBlocked) {
		t.Error("MergeBlockedError should match ErrMergeBlocked")
	}
	want := "harvester: merge blocked: 1 gap(s): (1, 2); last range is not open-ended"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
