package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	if !o.PadToMax {
		t.Fatalf("pad-to-max should default to true")
	}
	if o.ProjDir != "." || o.NXtomoDir != "." {
		t.Fatalf("directories should default to the working directory")
	}
}

func TestBindFlagsRoundTrip(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)

	err := fs.Parse([]string{
		"--from-scan", "100-110",
		"--exclude-scan", "105",
		"--sort-by-angle",
		"--pad-to-max=false",
		"--dry-run",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if o.FromScan != "100-110" || o.ExcludeScan != "105" {
		t.Fatalf("scan flags not bound: %+v", o)
	}
	if !o.SortByAngle || o.PadToMax || !o.DryRun {
		t.Fatalf("boolean flags not bound: %+v", o)
	}
}

func TestValidateResolvesRanges(t *testing.T) {
	o := NewOptions()
	o.ProjDir = t.TempDir()
	o.NXtomoDir = t.TempDir()
	o.FromScan = "100-104:2"

	if err := o.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if o.Scans.Len() != 3 {
		t.Fatalf("expected 3 scans, got %d", o.Scans.Len())
	}
	if !o.Projs.Unfiltered() || !o.Angles.Unfiltered() {
		t.Fatalf("untouched axes must stay unfiltered")
	}
}

func TestValidateRejectsBadRange(t *testing.T) {
	o := NewOptions()
	o.ProjDir = t.TempDir()
	o.NXtomoDir = t.TempDir()
	o.FromScan = "110-100"

	if err := o.Validate(); err == nil {
		t.Fatalf("descending range must be rejected")
	}
}

func TestValidateRejectsMissingProjDir(t *testing.T) {
	o := NewOptions()
	o.ProjDir = filepath.Join(t.TempDir(), "absent")
	o.NXtomoDir = t.TempDir()

	if err := o.Validate(); err == nil {
		t.Fatalf("missing projection directory must be rejected")
	}
}

func TestValidateMergesScanList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "scans.txt")
	if err := os.WriteFile(list, []byte("200\n201\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	o := NewOptions()
	o.ProjDir = dir
	o.NXtomoDir = dir
	o.ScanList = list
	o.FromScan = "100"

	if err := o.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if o.Scans.Len() != 3 {
		t.Fatalf("expected the union of flag and list, got %d entries", o.Scans.Len())
	}
}
