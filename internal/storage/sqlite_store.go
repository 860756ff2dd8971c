package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

const busyTimeoutMs = 5000

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations. It keeps one long-lived write pool
// limited to a single connection, so writes are serialized, and one read-only pool
// shared by all queries.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore opens the database at dbPath and initializes the schema. The
// schema is created idempotently, an error here means the database is unusable.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	s := &SqliteStore{dbPath: dbPath}
	if _, err := s.getWriteDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=%d&_txlock=immediate", s.dbPath, busyTimeoutMs)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", s.dbPath, busyTimeoutMs)
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) Append(ctx context.Context, smp *sample.Sample) (err error) {
	if smp == nil {
		return fmt.Errorf("%w: nil sample", ErrStoreWrite)
	}
	if err = smp.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("%w: getting write connection: %w", ErrStoreWrite, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrStoreWrite, err)
	}
	defer rollbackWithError(tx, &err)

	data := toSampleData(smp)
	if _, err = tx.ExecContext(
		ctx,
		insertSampleSQL,
		data.Timestamp,
		data.TemperatureF,
		data.HumidityPct,
		data.PressureHPa,
		data.ECO2PPM,
		data.TVOCPPB,
		data.IlluminanceLux,
		data.UVIndex,
	); err != nil {
		return fmt.Errorf("%w: inserting sample: %w", ErrStoreWrite, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", ErrStoreWrite, err)
	}

	return nil
}

func (s *SqliteStore) Latest(ctx context.Context) (smp *sample.Sample, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("%w: getting read connection: %w", ErrStoreRead, err)
	}

	data, err := scanSample(db.QueryRowContext(ctx, selectRecentSQL, 1))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: querying latest sample: %w", ErrStoreRead, err)
	}

	latest := data.toSample()
	return &latest, nil
}

func (s *SqliteStore) Recent(ctx context.Context, n int) (samples []sample.Sample, err error) {
	if n <= 0 {
		return []sample.Sample{}, nil
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("%w: getting read connection: %w", ErrStoreRead, err)
	}

	rows, err := db.QueryContext(ctx, selectRecentSQL, n)
	if err != nil {
		return nil, fmt.Errorf("%w: querying recent samples: %w", ErrStoreRead, err)
	}
	defer closeWithError(rows, &err)

	samples = make([]sample.Sample, 0, n)
	for rows.Next() {
		data, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning sample: %w", ErrStoreRead, err)
		}
		samples = append(samples, data.toSample())
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating samples: %w", ErrStoreRead, err)
	}

	slices.Reverse(samples) // newest first -> oldest first
	return samples, nil
}

func (s *SqliteStore) Count(ctx context.Context) (count int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("%w: getting read connection: %w", ErrStoreRead, err)
	}

	if err = db.QueryRowContext(ctx, countSamplesSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting samples: %w", ErrStoreRead, err)
	}
	return count, nil
}

// Path returns the database file path
func (s *SqliteStore) Path() string {
	return s.dbPath
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
