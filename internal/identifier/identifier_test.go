// identifier_test.go verifies range-spec parsing, list files, exclusion
// and ordering of resolved identifier sets.
package identifier

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveUnionAndExclusion(t *testing.T) {
	set, err := Resolve(Scan, "100-103,110,120-122", "", "121")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []int64{100, 101, 102, 103, 110, 120, 122}
	got := set.Ints()
	if len(got) != len(want) {
		t.Fatalf("expected %d identifiers, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("identifier %d mismatch: got %v want %v", i, got, want)
		}
	}
}

func TestResolveSteppedRange(t *testing.T) {
	set, err := Resolve(Scan, "100-105:2", "", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []int64{100, 102, 104}
	got := set.Ints()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResolveDeduplicatesAndSorts(t *testing.T) {
	set, err := Resolve(Proj, "5,1-3,2,5", "", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []int64{1, 2, 3, 5}
	got := set.Ints()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ascending dedup %v, got %v", want, got)
		}
	}
}

func TestExclusionOfAbsentIdentifierIsIdempotent(t *testing.T) {
	set, err := Resolve(Scan, "1-3", "", "99")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("excluding an absent identifier changed the set: %v", set.Ints())
	}
}

func TestResolveEmptyMeansUnfiltered(t *testing.T) {
	set, err := Resolve(Scan, "", "", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !set.Unfiltered() {
		t.Fatalf("empty sources should resolve to an unfiltered set")
	}
	if !set.ContainsInt(424242) {
		t.Fatalf("unfiltered set should contain every identifier")
	}
}

func TestResolveFromListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scans.txt")
	content := "10\n\n12 extra-column\n11\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write list file: %v", err)
	}
	set, err := Resolve(Scan, "12-14", path, "13")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []int64{10, 11, 12, 14}
	got := set.Ints()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResolveNegativeAngleRange(t *testing.T) {
	set, err := Resolve(Angle, "-90-90:45", "", "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []float64{-90, -45, 0, 45, 90}
	got := set.Values()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !set.Contains(45.0004) {
		t.Fatalf("angle membership should tolerate %v", AngleTolerance)
	}
}

func TestResolveRejectsMalformedClauses(t *testing.T) {
	cases := []struct {
		name string
		spec string
	}{
		{"non numeric", "abc"},
		{"end before start", "10-5"},
		{"zero step", "1-10:0"},
		{"float on scan axis", "1.5"},
		{"negative scan", "-4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(Scan, tc.spec, "", "")
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected SyntaxError for %q, got %v", tc.spec, err)
			}
		})
	}
}

func TestResolveRejectsExcludeWithoutInclude(t *testing.T) {
	_, err := Resolve(Scan, "", "", "5")
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
}
