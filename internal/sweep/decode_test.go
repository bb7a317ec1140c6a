package sweep

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	in := `{
		"device": "A3",
		"test_name": "fast-iv",
		"voltage": [0, 0.5, 1.0, 0.5, 0],
		"current": [0, 1e-6, 4e-6, 2e-6, 0]
	}`
	s, err := DecodeJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if s.Device != "A3" || s.TestName != "fast-iv" {
		t.Errorf("metadata = %q/%q, want A3/fast-iv", s.Device, s.TestName)
	}
	if s.Samples() != 5 {
		t.Errorf("Samples() = %d, want 5", s.Samples())
	}
	if s.ID == "" {
		t.Error("expected generated ID")
	}
	if s.AcquiredAt.IsZero() {
		t.Error("expected AcquiredAt to be filled")
	}
}

func TestDecodeJSON_TooShort(t *testing.T) {
	in := `{"device":"A1","voltage":[0,1],"current":[0,1]}`
	if _, err := DecodeJSON(strings.NewReader(in)); err == nil {
		t.Fatal("expected insufficient data error")
	}
}

func TestDecodeCSV(t *testing.T) {
	in := "voltage,current,time\n0,0,0\n0.5,1e-6,0.1\n1.0,4e-6,0.2\n0.5,2e-6,0.3\n0,0,0.4\n"
	s, err := DecodeCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if s.Samples() != 5 {
		t.Errorf("Samples() = %d, want 5", s.Samples())
	}
	if s.Time == nil || len(s.Time) != 5 {
		t.Errorf("Time = %v, want 5 entries", s.Time)
	}
	if s.Voltage[2] != 1.0 || s.Current[2] != 4e-6 {
		t.Errorf("sample 2 = (%v, %v), want (1.0, 4e-6)", s.Voltage[2], s.Current[2])
	}
}

func TestDecodeCSV_MissingColumns(t *testing.T) {
	in := "volts,amps\n0,0\n1,1\n2,2\n3,3\n"
	if _, err := DecodeCSV(strings.NewReader(in)); err == nil {
		t.Fatal("expected missing column error")
	}
}

func TestDecodeFile_NamesFromStem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "B7__retention-iv.csv")
	data := "voltage,current\n0,0\n1,1e-6\n2,3e-6\n1,2e-6\n0,0\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if s.Device != "B7" {
		t.Errorf("Device = %q, want B7", s.Device)
	}
	if s.TestName != "retention-iv" {
		t.Errorf("TestName = %q, want retention-iv", s.TestName)
	}
}

func TestDecodeFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeFile(path); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}
