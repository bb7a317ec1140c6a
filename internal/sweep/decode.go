package sweep

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DecodeFile reads one sweep from a spool file. JSON files carry their own
// device/test metadata; CSV files use the filename stem, with the form
// <device>__<test>.csv when a double underscore is present.
func DecodeFile(path string) (RawSweep, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawSweep{}, fmt.Errorf("open sweep file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(f)
	case ".csv":
		s, err := DecodeCSV(f)
		if err != nil {
			return RawSweep{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		s.Device, s.TestName = namesFromStem(path)
		return s, nil
	default:
		return RawSweep{}, fmt.Errorf("unsupported sweep file extension %q", filepath.Ext(path))
	}
}

// DecodeJSON reads one sweep in the native JSON format.
func DecodeJSON(r io.Reader) (RawSweep, error) {
	var s RawSweep
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return RawSweep{}, fmt.Errorf("parse sweep json: %w", err)
	}
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.AcquiredAt.IsZero() {
		s.AcquiredAt = time.Now().UTC()
	}
	if err := s.Validate(); err != nil {
		return RawSweep{}, err
	}
	return s, nil
}

// DecodeCSV reads a sweep with a "voltage,current[,time]" header row.
// Acquisition rigs that cannot emit JSON drop these.
func DecodeCSV(r io.Reader) (RawSweep, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return RawSweep{}, fmt.Errorf("read csv header: %w", err)
	}
	vCol, iCol, tCol := -1, -1, -1
	for idx, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "voltage", "v":
			vCol = idx
		case "current", "i":
			iCol = idx
		case "time", "t":
			tCol = idx
		}
	}
	if vCol < 0 || iCol < 0 {
		return RawSweep{}, fmt.Errorf("csv header missing voltage/current columns: %v", header)
	}

	s := RawSweep{
		ID:         NewID(),
		AcquiredAt: time.Now().UTC(),
	}
	if tCol >= 0 {
		s.Time = []float64{}
	}
	row := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RawSweep{}, fmt.Errorf("read csv row %d: %w", row, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[vCol]), 64)
		if err != nil {
			return RawSweep{}, fmt.Errorf("row %d: bad voltage %q", row, rec[vCol])
		}
		i, err := strconv.ParseFloat(strings.TrimSpace(rec[iCol]), 64)
		if err != nil {
			return RawSweep{}, fmt.Errorf("row %d: bad current %q", row, rec[iCol])
		}
		s.Voltage = append(s.Voltage, v)
		s.Current = append(s.Current, i)
		if tCol >= 0 {
			t, err := strconv.ParseFloat(strings.TrimSpace(rec[tCol]), 64)
			if err != nil {
				return RawSweep{}, fmt.Errorf("row %d: bad time %q", row, rec[tCol])
			}
			s.Time = append(s.Time, t)
		}
		row++
	}
	if err := s.Validate(); err != nil {
		return RawSweep{}, err
	}
	return s, nil
}

// namesFromStem splits "<device>__<test>" out of a spool filename.
func namesFromStem(path string) (device, test string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if d, t, ok := strings.Cut(stem, "__"); ok {
		return d, t
	}
	return stem, ""
}
