package batterystudy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

// Session is one charge-to-charge tracking period for a device,
// opened when its accessory session comes up and closed when it goes
// away.
type Session struct {
	ID        string
	Address   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Sample is one persisted battery reading.
type Sample struct {
	SessionID string
	Address   string
	At        time.Time
	Battery   airpods.Battery
}

const defaultRecentLimit = 100

// StartSession opens a new tracking session for the device.
func (s *Study) StartSession(ctx context.Context, address string) (Session, error) {
	session := Session{
		ID:        uuid.NewString(),
		Address:   address,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, address, started_at) VALUES (?, ?, ?)`,
		session.ID, session.Address, toMillis(session.StartedAt))
	if err != nil {
		return Session{}, fmt.Errorf("batterystudy: start session: %w", err)
	}
	return session, nil
}

// EndSession closes an open session. Ending a session that does not
// exist or was already ended reports a NotFoundError.
func (s *Study) EndSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		toMillis(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("batterystudy: end session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("batterystudy: end session: %w", err)
	}
	if affected == 0 {
		return NotFoundError{Entity: "open session", Key: id}
	}
	return nil
}

// Session loads one session by id.
func (s *Study) Session(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, started_at, ended_at FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ActiveSession returns the most recent open session for the device.
func (s *Study) ActiveSession(ctx context.Context, address string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, started_at, ended_at FROM sessions
		 WHERE address = ? AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`, address)
	session, err := scanSession(row)
	if err != nil {
		if IsNotFound(err) {
			return Session{}, NotFoundError{Entity: "open session for", Key: address}
		}
		return Session{}, err
	}
	return session, nil
}

// RecordSample persists one battery reading inside a session.
func (s *Study) RecordSample(ctx context.Context, sessionID, address string, at time.Time, b airpods.Battery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (session_id, address, recorded_at,
			left_level, left_charging, right_level, right_charging, case_level, case_charging)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, address, toMillis(at.UTC()),
		b.Left.Level, boolToInt(b.Left.Charging),
		b.Right.Level, boolToInt(b.Right.Charging),
		b.Case.Level, boolToInt(b.Case.Charging))
	if err != nil {
		return fmt.Errorf("batterystudy: record sample: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples for the device, newest
// first. A non-positive limit selects the default.
func (s *Study) RecentSamples(ctx context.Context, address string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, address, recorded_at,
			left_level, left_charging, right_level, right_charging, case_level, case_charging
		 FROM samples WHERE address = ?
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("batterystudy: recent samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batterystudy: recent samples: %w", err)
	}
	return samples, nil
}

// SessionDrainRate estimates earbud percent drained per hour between
// the first and last usable samples of a session.
func (s *Study) SessionDrainRate(ctx context.Context, sessionID string) (float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, address, recorded_at,
			left_level, left_charging, right_level, right_charging, case_level, case_charging
		 FROM samples WHERE session_id = ?
		 ORDER BY recorded_at ASC, id ASC`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("batterystudy: session samples: %w", err)
	}
	defer rows.Close()

	var first, last Sample
	var firstLevel, lastLevel float64
	usable := 0
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return 0, err
		}
		level, ok := earbudLevel(sample.Battery)
		if !ok {
			continue
		}
		if usable == 0 {
			first, firstLevel = sample, level
		}
		last, lastLevel = sample, level
		usable++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("batterystudy: session samples: %w", err)
	}
	if usable < 2 || !last.At.After(first.At) {
		return 0, ErrInsufficientSamples
	}
	return (firstLevel - lastLevel) / last.At.Sub(first.At).Hours(), nil
}

// PruneBefore removes samples recorded before the cutoff and sessions
// that ended before it. It reports the number of samples removed.
func (s *Study) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM samples WHERE recorded_at < ?`, toMillis(cutoff.UTC()))
		if err != nil {
			return fmt.Errorf("batterystudy: prune samples: %w", err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("batterystudy: prune samples: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`,
			toMillis(cutoff.UTC())); err != nil {
			return fmt.Errorf("batterystudy: prune sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		session Session
		started int64
		ended   sql.NullInt64
	)
	err := row.Scan(&session.ID, &session.Address, &started, &ended)
	if err == sql.ErrNoRows {
		return Session{}, NotFoundError{Entity: "session"}
	}
	if err != nil {
		return Session{}, fmt.Errorf("batterystudy: scan session: %w", err)
	}
	session.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		session.EndedAt = &t
	}
	return session, nil
}

func scanSample(row rowScanner) (Sample, error) {
	var (
		sample     Sample
		recorded   int64
		leftCharg  int
		rightCharg int
		caseCharg  int
	)
	err := row.Scan(&sample.SessionID, &sample.Address, &recorded,
		&sample.Battery.Left.Level, &leftCharg,
		&sample.Battery.Right.Level, &rightCharg,
		&sample.Battery.Case.Level, &caseCharg)
	if err != nil {
		return Sample{}, fmt.Errorf("batterystudy: scan sample: %w", err)
	}
	sample.At = fromMillis(recorded)
	sample.Battery.Left.Charging = leftCharg != 0
	sample.Battery.Right.Charging = rightCharg != 0
	sample.Battery.Case.Charging = caseCharg != 0
	return sample, nil
}

// earbudLevel averages the known earbud levels, ignoring the case.
func earbudLevel(b airpods.Battery) (float64, bool) {
	var sum, n float64
	if b.Left.Known() {
		sum += float64(b.Left.Level)
		n++
	}
	if b.Right.Known() {
		sum += float64(b.Right.Level)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
