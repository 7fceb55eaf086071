// facility_test.go verifies descriptor loading and facility detection.
package facility

import (
	"errors"
	"testing"
)

func TestLoadKnownFacilities(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	for _, name := range []string{"i08-1", "i13-1", "i14"} {
		fac, err := table.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if fac.Name != name {
			t.Fatalf("descriptor name mismatch: got %s want %s", fac.Name, name)
		}
		if len(fac.PtychoFileTypes) == 0 {
			t.Fatalf("%s has no ptycho file types", name)
		}
	}
}

func TestGetResolvesAliases(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fac, err := table.Get("j08")
	if err != nil {
		t.Fatalf("alias lookup failed: %v", err)
	}
	if fac.Name != "i08-1" {
		t.Fatalf("j08 should alias i08-1, got %s", fac.Name)
	}
	if _, err := table.Get("i99"); err == nil {
		t.Fatalf("unknown facility should fail")
	}
}

func TestDetectFromDirectory(t *testing.T) {
	t.Setenv("BEAMLINE", "")
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fac, err := table.Detect("", "/dls/i14/data/2025/cm12345-6/processed")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if fac.Name != "i14" {
		t.Fatalf("expected i14, got %s", fac.Name)
	}
}

func TestDetectOverrideWinsVerbatim(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fac, err := table.Detect("i08-1", "/dls/i14/data")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if fac.Name != "i08-1" {
		t.Fatalf("override should win, got %s", fac.Name)
	}
}

func TestDetectEnvironmentVariable(t *testing.T) {
	t.Setenv("BEAMLINE", "i13-1")
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fac, err := table.Detect("", "/scratch/without/clues")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if fac.Name != "i13-1" {
		t.Fatalf("expected i13-1 from BEAMLINE, got %s", fac.Name)
	}
}

func TestDetectAmbiguousOrMissingFails(t *testing.T) {
	t.Setenv("BEAMLINE", "")
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	var undetermined *UndeterminedError
	_, err = table.Detect("", "/dls/i14/staging/i08-1/visit")
	if !errors.As(err, &undetermined) {
		t.Fatalf("expected UndeterminedError for ambiguous paths, got %v", err)
	}
	if len(undetermined.Matched) != 2 {
		t.Fatalf("expected two ambiguous matches, got %v", undetermined.Matched)
	}

	_, err = table.Detect("", "/tmp/nothing-here")
	if !errors.As(err, &undetermined) {
		t.Fatalf("expected UndeterminedError for no match, got %v", err)
	}
}

func TestMetadataFileCandidates(t *testing.T) {
	table, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	fac, err := table.Get("i14")
	if err != nil {
		t.Fatalf("get i14: %v", err)
	}
	got := fac.MetadataFileCandidates("/dls/i14/data/2025/cm1-2", 1234)
	if len(got) == 0 {
		t.Fatalf("no metadata candidates")
	}
	if got[0] != "/dls/i14/data/2025/cm1-2/scan/i14-1234.nxs" {
		t.Fatalf("unexpected first candidate %s", got[0])
	}
}
