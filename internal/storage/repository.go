package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"vx-continuous/internal/roll"
	"vx-continuous/internal/series"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// Prices and factors are stored as text so a reloaded series compares
// byte-identical to the build that produced it.
const (
	insertBuildSQL = `INSERT INTO series_builds (
        fingerprint,
        underlying,
        roll_policy,
        adjustment,
        range_start,
        range_end,
        point_count,
        roll_count
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (fingerprint) DO NOTHING;`

	insertPointSQL = `INSERT INTO series_points (
        fingerprint,
        obs_date,
        price,
        source_symbol
    ) VALUES ($1,$2,$3,$4);`

	insertRollEventSQL = `INSERT INTO series_roll_events (
        fingerprint,
        seq,
        roll_date,
        outgoing_symbol,
        incoming_symbol,
        factor
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	getBuildSQL = `SELECT
        fingerprint,
        underlying,
        roll_policy,
        adjustment,
        range_start,
        range_end,
        point_count,
        roll_count,
        built_at
    FROM series_builds
    WHERE fingerprint = $1;`

	listPointsSQL = `SELECT obs_date, price, source_symbol
    FROM series_points
    WHERE fingerprint = $1
    ORDER BY obs_date;`

	listPointsBetweenSQL = `SELECT obs_date, price, source_symbol
    FROM series_points
    WHERE fingerprint = $1
      AND obs_date >= $2
      AND obs_date < $3
    ORDER BY obs_date;`

	listRollEventsSQL = `SELECT roll_date, outgoing_symbol, incoming_symbol, factor
    FROM series_roll_events
    WHERE fingerprint = $1
    ORDER BY seq;`

	latestBuildSQL = `SELECT
        fingerprint,
        underlying,
        roll_policy,
        adjustment,
        range_start,
        range_end,
        point_count,
        roll_count,
        built_at
    FROM series_builds
    WHERE underlying = $1
    ORDER BY built_at DESC
    LIMIT 1;`

	listRecentBuildsSQL = `SELECT
        fingerprint,
        underlying,
        roll_policy,
        adjustment,
        range_start,
        range_end,
        point_count,
        roll_count,
        built_at
    FROM series_builds
    ORDER BY built_at DESC
    LIMIT $1;`

	deleteBuildsBeforeSQL = `DELETE FROM series_builds WHERE built_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SeriesRepository defines persistence for continuous-series builds.
type SeriesRepository interface {
	GetSeries(ctx context.Context, fingerprint string) (*series.ContinuousSeries, bool, error)
	SaveSeries(ctx context.Context, fingerprint string, s *series.ContinuousSeries) error
	LatestBuild(ctx context.Context, underlying string) (BuildRecord, bool, error)
	ListRecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error)
	ListPointsBetween(ctx context.Context, fingerprint string, from, to time.Time) ([]series.Point, error)
	DeleteBuildsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists continuous-series builds in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ SeriesRepository = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSeries persists a built series atomically. Entries are immutable: if
// the fingerprint already exists the call is a no-op.
func (s *Store) SaveSeries(ctx context.Context, fingerprint string, ser *series.ContinuousSeries) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save series: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, insertBuildSQL,
		fingerprint,
		ser.Underlying,
		ser.RollPolicy,
		string(ser.Adjustment),
		ser.Start,
		ser.End,
		len(ser.Points),
		len(ser.Rolls),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already stored under this fingerprint; never update in place.
		return nil
	}

	for _, p := range ser.Points {
		if _, err := tx.Exec(ctx, insertPointSQL, fingerprint, p.Date, p.Price.String(), p.Symbol); err != nil {
			return fmt.Errorf("insert point %s: %w", p.Date.Format("2006-01-02"), err)
		}
	}
	for i, ev := range ser.Rolls {
		if _, err := tx.Exec(ctx, insertRollEventSQL,
			fingerprint, i, ev.RollDate, ev.OutgoingSymbol, ev.IncomingSymbol, ev.Factor.String()); err != nil {
			return fmt.Errorf("insert roll event %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save series: %w", err)
	}
	return nil
}

// GetSeries reloads a persisted series by fingerprint.
func (s *Store) GetSeries(ctx context.Context, fingerprint string) (*series.ContinuousSeries, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	record, err := scanBuildRecord(pool.QueryRow(ctx, getBuildSQL, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	points, err := s.queryPoints(ctx, listPointsSQL, fingerprint)
	if err != nil {
		return nil, false, err
	}

	rows, err := pool.Query(ctx, listRollEventsSQL, fingerprint)
	if err != nil {
		return nil, false, fmt.Errorf("list roll events: %w", err)
	}
	defer rows.Close()

	events := make([]roll.Event, 0, record.RollCount)
	for rows.Next() {
		var ev roll.Event
		var factorStr string
		if err := rows.Scan(&ev.RollDate, &ev.OutgoingSymbol, &ev.IncomingSymbol, &factorStr); err != nil {
			return nil, false, fmt.Errorf("scan roll event: %w", err)
		}
		ev.RollDate = ev.RollDate.UTC()
		ev.Factor, err = decimal.NewFromString(factorStr)
		if err != nil {
			return nil, false, fmt.Errorf("parse roll factor: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, false, rows.Err()
	}

	return &series.ContinuousSeries{
		Underlying: record.Underlying,
		RollPolicy: record.RollPolicy,
		Adjustment: roll.Adjustment(record.Adjustment),
		Start:      record.RangeStart.UTC(),
		End:        record.RangeEnd.UTC(),
		Points:     points,
		Rolls:      events,
	}, true, nil
}

// LatestBuild returns the most recent build for an underlying.
func (s *Store) LatestBuild(ctx context.Context, underlying string) (BuildRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return BuildRecord{}, false, err
	}
	record, err := scanBuildRecord(pool.QueryRow(ctx, latestBuildSQL, underlying))
	if errors.Is(err, pgx.ErrNoRows) {
		return BuildRecord{}, false, nil
	}
	if err != nil {
		return BuildRecord{}, false, err
	}
	return record, true, nil
}

// ListRecentBuilds lists builds ordered by descending build time.
func (s *Store) ListRecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentBuildsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent builds: %w", queryErr)
	}
	defer rows.Close()

	records := make([]BuildRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanBuildRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListPointsBetween lists a build's points within [from, to).
func (s *Store) ListPointsBetween(ctx context.Context, fingerprint string, from, to time.Time) ([]series.Point, error) {
	return s.queryPoints(ctx, listPointsBetweenSQL, fingerprint, from, to)
}

// DeleteBuildsBefore prunes builds older than the given time. Points and
// roll events cascade with the build row.
func (s *Store) DeleteBuildsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteBuildsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete builds before: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) queryPoints(ctx context.Context, sql string, args ...any) ([]series.Point, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list points: %w", queryErr)
	}
	defer rows.Close()

	points := make([]series.Point, 0)
	for rows.Next() {
		var p series.Point
		var priceStr string
		if err := rows.Scan(&p.Date, &priceStr, &p.Symbol); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		p.Date = p.Date.UTC()
		p.Price, err = decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse point price: %w", err)
		}
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuildRecord(row rowScanner) (BuildRecord, error) {
	var record BuildRecord
	if err := row.Scan(
		&record.Fingerprint,
		&record.Underlying,
		&record.RollPolicy,
		&record.Adjustment,
		&record.RangeStart,
		&record.RangeEnd,
		&record.PointCount,
		&record.RollCount,
		&record.BuiltAt,
	); err != nil {
		return BuildRecord{}, err
	}
	record.RangeStart = record.RangeStart.UTC()
	record.RangeEnd = record.RangeEnd.UTC()
	return record, nil
}
