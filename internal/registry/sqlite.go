package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"memlab/internal/classify"
	"memlab/internal/logging"
)

// SQLiteStore persists the registry in a single SQLite file. Device state
// is upserted; classification history is insert-only, matching the
// registry's append-only invariant.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and markedly faster than FULL
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		device_id          TEXT PRIMARY KEY,
		stage              TEXT NOT NULL,
		selected_for_final INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS classifications (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id   TEXT NOT NULL,
		test_name   TEXT NOT NULL,
		label       TEXT NOT NULL,
		score       REAL NOT NULL,
		confidence  REAL NOT NULL,
		result_json TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_classifications_device
		ON classifications(device_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveDevice upserts the device's workflow state. History rows are
// untouched.
func (s *SQLiteStore) SaveDevice(d DeviceRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO devices (device_id, stage, selected_for_final, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			stage = excluded.stage,
			selected_for_final = excluded.selected_for_final,
			updated_at = excluded.updated_at`,
		d.DeviceID, string(d.Stage), boolToInt(d.SelectedForFinal),
		d.CreatedAt.UTC().Format(time.RFC3339Nano),
		d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", d.DeviceID, err)
	}
	return nil
}

// AppendHistory inserts one classification row. There is no update path.
func (s *SQLiteStore) AppendHistory(deviceID string, e HistoryEntry) error {
	blob, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO classifications (device_id, test_name, label, score, confidence, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, e.TestName, string(e.Result.Label), e.Result.Score, e.Result.Confidence,
		string(blob), e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append history for %s: %w", deviceID, err)
	}
	return nil
}

// LoadAll reads every device with its full history, ordered for
// deterministic reconstruction.
func (s *SQLiteStore) LoadAll() ([]DeviceRecord, error) {
	rows, err := s.db.Query(`
		SELECT device_id, stage, selected_for_final, created_at, updated_at
		FROM devices ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRecord
	index := make(map[string]int)
	for rows.Next() {
		var d DeviceRecord
		var stage, created, updated string
		var selected int
		if err := rows.Scan(&d.DeviceID, &stage, &selected, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Stage = Stage(stage)
		d.SelectedForFinal = selected != 0
		if d.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("bad created_at for %s: %w", d.DeviceID, err)
		}
		if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("bad updated_at for %s: %w", d.DeviceID, err)
		}
		index[d.DeviceID] = len(out)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	hrows, err := s.db.Query(`
		SELECT device_id, test_name, result_json, created_at
		FROM classifications ORDER BY device_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer hrows.Close()

	for hrows.Next() {
		var deviceID, testName, blob, created string
		if err := hrows.Scan(&deviceID, &testName, &blob, &created); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		i, ok := index[deviceID]
		if !ok {
			// orphan row; device table is the source of truth
			continue
		}
		var e HistoryEntry
		e.TestName = testName
		var res classify.Result
		if err := json.Unmarshal([]byte(blob), &res); err != nil {
			return nil, fmt.Errorf("bad result_json for %s: %w", deviceID, err)
		}
		e.Result = res
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("bad history created_at for %s: %w", deviceID, err)
		}
		out[i].History = append(out[i].History, e)
	}
	if err := hrows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
