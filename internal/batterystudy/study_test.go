package batterystudy

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/kairpods/kairpodsd/internal/airpods"
)

const testAddr = "AA:BB:CC:DD:EE:FF"

func openTestStudy(t *testing.T) *Study {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "battery_study.db")
	study, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open study: %v", err)
	}
	t.Cleanup(func() {
		study.Close()
	})
	return study
}

func testBattery(left, right, caseLevel int) airpods.Battery {
	return airpods.Battery{
		Left:  airpods.Component{Level: left},
		Right: airpods.Component{Level: right},
		Case:  airpods.Component{Level: caseLevel},
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	session, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if session.Address != testAddr {
		t.Fatalf("session address = %q, want %q", session.Address, testAddr)
	}

	active, err := study.ActiveSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if active.ID != session.ID {
		t.Fatalf("active session id = %q, want %q", active.ID, session.ID)
	}
	if active.EndedAt != nil {
		t.Fatal("active session should not have an end time")
	}

	if err := study.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end session: %v", err)
	}

	ended, err := study.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("load ended session: %v", err)
	}
	if ended.EndedAt == nil {
		t.Fatal("ended session should have an end time")
	}
	if ended.EndedAt.Before(ended.StartedAt) {
		t.Fatalf("session ended %v before it started %v", ended.EndedAt, ended.StartedAt)
	}

	if _, err := study.ActiveSession(ctx, testAddr); !IsNotFound(err) {
		t.Fatalf("expected not-found after ending the session, got %v", err)
	}

	// Ending twice reports the session as gone.
	if err := study.EndSession(ctx, session.ID); !IsNotFound(err) {
		t.Fatalf("expected not-found on double end, got %v", err)
	}
}

func TestSessionLookupMissing(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	if _, err := study.Session(ctx, "no-such-session"); !IsNotFound(err) {
		t.Fatalf("expected not-found for unknown session, got %v", err)
	}

	err := study.EndSession(ctx, "no-such-session")
	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Key != "no-such-session" {
		t.Fatalf("not-found key = %q, want the session id", notFound.Key)
	}
}

func TestRecordAndRecentSamples(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	session, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	readings := []struct {
		at      time.Time
		battery airpods.Battery
	}{
		{base, testBattery(90, 88, 70)},
		{base.Add(time.Minute), testBattery(85, 84, 70)},
		{base.Add(2 * time.Minute), airpods.Battery{
			Left:  airpods.Component{Level: 80, Charging: true},
			Right: airpods.Component{Level: 79},
			Case:  airpods.Component{Level: airpods.LevelUnknown},
		}},
	}
	for _, r := range readings {
		if err := study.RecordSample(ctx, session.ID, testAddr, r.at, r.battery); err != nil {
			t.Fatalf("record sample at %v: %v", r.at, err)
		}
	}

	samples, err := study.RecentSamples(ctx, testAddr, 0)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}

	// Newest first, with the battery reading intact.
	newest := samples[0]
	if !newest.At.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("newest sample at %v, want %v", newest.At, base.Add(2*time.Minute))
	}
	if newest.SessionID != session.ID {
		t.Fatalf("sample session id = %q, want %q", newest.SessionID, session.ID)
	}
	if !newest.Battery.Left.Charging || newest.Battery.Left.Level != 80 {
		t.Fatalf("left component did not round-trip: %+v", newest.Battery.Left)
	}
	if newest.Battery.Case.Level != airpods.LevelUnknown {
		t.Fatalf("unknown case level did not round-trip: %+v", newest.Battery.Case)
	}
	if oldest := samples[2]; !oldest.At.Equal(base) {
		t.Fatalf("oldest sample at %v, want %v", oldest.At, base)
	}

	limited, err := study.RecentSamples(ctx, testAddr, 2)
	if err != nil {
		t.Fatalf("recent samples with limit: %v", err)
	}
	if len(limited) != 2 || !limited[0].At.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("limit should keep the newest samples, got %+v", limited)
	}

	other, err := study.RecentSamples(ctx, "11:22:33:44:55:66", 0)
	if err != nil {
		t.Fatalf("recent samples for other address: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no samples for other address, got %d", len(other))
	}
}

func TestSessionDrainRate(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	session, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	// 90 -> 75 earbud average over two hours, with an unusable reading
	// in between.
	if err := study.RecordSample(ctx, session.ID, testAddr, base, testBattery(90, 90, 50)); err != nil {
		t.Fatalf("record first sample: %v", err)
	}
	unknown := testBattery(airpods.LevelUnknown, airpods.LevelUnknown, 50)
	if err := study.RecordSample(ctx, session.ID, testAddr, base.Add(time.Hour), unknown); err != nil {
		t.Fatalf("record unusable sample: %v", err)
	}
	if err := study.RecordSample(ctx, session.ID, testAddr, base.Add(2*time.Hour), testBattery(80, 70, 50)); err != nil {
		t.Fatalf("record last sample: %v", err)
	}

	rate, err := study.SessionDrainRate(ctx, session.ID)
	if err != nil {
		t.Fatalf("session drain rate: %v", err)
	}
	if math.Abs(rate-7.5) > 1e-9 {
		t.Fatalf("drain rate = %v, want 7.5", rate)
	}
}

func TestSessionDrainRateInsufficientSamples(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	session, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if _, err := study.SessionDrainRate(ctx, session.ID); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected insufficient samples with no data, got %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	if err := study.RecordSample(ctx, session.ID, testAddr, base, testBattery(90, 90, 50)); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if _, err := study.SessionDrainRate(ctx, session.ID); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected insufficient samples with one reading, got %v", err)
	}

	// A second reading at the same instant spans no time.
	if err := study.RecordSample(ctx, session.ID, testAddr, base, testBattery(80, 80, 50)); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if _, err := study.SessionDrainRate(ctx, session.ID); !errors.Is(err, ErrInsufficientSamples) {
		t.Fatalf("expected insufficient samples for zero duration, got %v", err)
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()

	study := openTestStudy(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	oldTime := now.Add(-45 * 24 * time.Hour)

	oldSession, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start old session: %v", err)
	}
	for _, at := range []time.Time{oldTime, oldTime.Add(time.Minute)} {
		if err := study.RecordSample(ctx, oldSession.ID, testAddr, at, testBattery(90, 90, 50)); err != nil {
			t.Fatalf("record old sample: %v", err)
		}
	}
	if err := study.EndSession(ctx, oldSession.ID); err != nil {
		t.Fatalf("end old session: %v", err)
	}
	// Backdate the end so the session falls behind the cutoff.
	if _, err := study.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		toMillis(oldTime.Add(time.Hour)), oldSession.ID); err != nil {
		t.Fatalf("backdate old session: %v", err)
	}

	current, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start current session: %v", err)
	}
	if err := study.RecordSample(ctx, current.ID, testAddr, now, testBattery(85, 84, 70)); err != nil {
		t.Fatalf("record current sample: %v", err)
	}

	removed, err := study.PruneBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("pruned %d samples, want 2", removed)
	}

	samples, err := study.RecentSamples(ctx, testAddr, 0)
	if err != nil {
		t.Fatalf("recent samples after prune: %v", err)
	}
	if len(samples) != 1 || samples[0].SessionID != current.ID {
		t.Fatalf("expected only the current sample to survive, got %+v", samples)
	}

	if _, err := study.Session(ctx, oldSession.ID); !IsNotFound(err) {
		t.Fatalf("expected old session to be pruned, got %v", err)
	}
	if _, err := study.Session(ctx, current.ID); err != nil {
		t.Fatalf("current session should survive the prune: %v", err)
	}
}

func TestReopenPersistsData(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "battery_study.db")
	ctx := context.Background()

	study, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open study: %v", err)
	}
	session, err := study.StartSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := study.RecordSample(ctx, session.ID, testAddr, at, testBattery(90, 88, 70)); err != nil {
		t.Fatalf("record sample: %v", err)
	}
	if err := study.Close(); err != nil {
		t.Fatalf("close study: %v", err)
	}

	reopened, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen study: %v", err)
	}
	t.Cleanup(func() {
		reopened.Close()
	})

	active, err := reopened.ActiveSession(ctx, testAddr)
	if err != nil {
		t.Fatalf("active session after reopen: %v", err)
	}
	if active.ID != session.ID {
		t.Fatalf("active session id = %q, want %q", active.ID, session.ID)
	}

	samples, err := reopened.RecentSamples(ctx, testAddr, 0)
	if err != nil {
		t.Fatalf("recent samples after reopen: %v", err)
	}
	if len(samples) != 1 || !samples[0].At.Equal(at) {
		t.Fatalf("sample did not survive reopen: %+v", samples)
	}
}
