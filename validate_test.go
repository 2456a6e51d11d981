package fbq

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{
		"a",
		"report",
		"nightly-report",
		"report_2024.v1",
		"0start",
		strings.Repeat("a", 128),
	}
	for _, name := range valid {
		if err := validateName(name); err != nil {
			t.Errorf("validateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{
		"",
		"-leading-dash",
		".leading-dot",
		"has space",
		"has/slash",
		"хей",
		strings.Repeat("a", 129),
	}
	for _, name := range invalid {
		if err := validateName(name); err == nil {
			t.Errorf("validateName(%q) = nil, want error", name)
		}
	}
}

func TestValidateOwner(t *testing.T) {
	if err := validateOwner("builder-7"); err != nil {
		t.Errorf("validateOwner() = %v, want nil", err)
	}
	if err := validateOwner(""); err == nil {
		t.Error("expected error for empty owner")
	}
}

func TestValidateID(t *testing.T) {
	if err := validateID(1); err != nil {
		t.Errorf("validateID(1) = %v, want nil", err)
	}
	for _, id := range []int64{0, -1} {
		if err := validateID(id); err == nil {
			t.Errorf("validateID(%d) = nil, want error", id)
		}
	}
}

func TestValidateFile(t *testing.T) {
	path := writeTempFile(t, "f.zip", []byte("x"))
	if err := validateFile(path); err != nil {
		t.Errorf("validateFile() = %v, want nil", err)
	}
	if err := validateFile(""); err == nil {
		t.Error("expected error for empty path")
	}
	if err := validateFile("/no/such/file"); err == nil {
		t.Error("expected error for missing file")
	}
	if err := validateFile(t.TempDir()); err == nil {
		t.Error("expected error for directory")
	}
}
