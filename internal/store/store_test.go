package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data    [][]any
	idx     int
	err     error
	closed  bool
	scanErr error
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

func (r *mockRows) Values() ([]any, error) { return nil, nil }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// Migration tests
// ---------------------------------------------------------------------------

func TestMigrateSkipsSpeakerRewriteForTextColumn(t *testing.T) {
	t.Parallel()

	var execs []string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			execs = append(execs, sql)
			return pgconn.CommandTag{}, nil
		},
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*string)) = "text"
				return nil
			}}
		},
	}

	if err := New(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("Migrate() ran %d statements, want only the schema DDL", len(execs))
	}
	if !strings.Contains(execs[0], "CREATE TABLE IF NOT EXISTS vc_state") {
		t.Errorf("Migrate() first statement is not the schema DDL: %q", execs[0])
	}
}

func TestMigrateRewritesIntegerSpeakerColumn(t *testing.T) {
	t.Parallel()

	var execs []string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			execs = append(execs, sql)
			return pgconn.CommandTag{}, nil
		},
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*string)) = "integer"
				return nil
			}}
		},
	}

	if err := New(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Schema DDL plus the four-step column rewrite.
	if len(execs) != 5 {
		t.Fatalf("Migrate() ran %d statements, want 5", len(execs))
	}
	wantSteps := []string{"ADD COLUMN speaker_id_text", "speaker_id::text", "DROP COLUMN speaker_id", "RENAME COLUMN speaker_id_text"}
	for i, want := range wantSteps {
		if !strings.Contains(execs[i+1], want) {
			t.Errorf("Migrate() step %d = %q, want substring %q", i+1, execs[i+1], want)
		}
	}
}

func TestMigrateMissingColumnProbe(t *testing.T) {
	t.Parallel()

	db := &mockDB{} // QueryRow defaults to ErrNoRows
	if err := New(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Query tests
// ---------------------------------------------------------------------------

func TestGuildDictionary(t *testing.T) {
	t.Parallel()

	rows := &mockRows{data: [][]any{
		{"ww", "わらわら"},
		{"btw", "ところで"},
	}}
	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
			if len(args) != 1 || args[0] != "g1" {
				return nil, fmt.Errorf("unexpected args %v", args)
			}
			return rows, nil
		},
	}

	entries, err := New(db).GuildDictionary(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GuildDictionary() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GuildDictionary() returned %d entries, want 2", len(entries))
	}
	if entries[0].Key != "ww" || entries[0].Value != "わらわら" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if !rows.closed {
		t.Error("GuildDictionary() did not close rows")
	}
}

func TestVCStateNotFound(t *testing.T) {
	t.Parallel()

	st, err := New(&mockDB{}).VCState(context.Background(), "g1")
	if err != nil {
		t.Fatalf("VCState() error = %v", err)
	}
	if st != nil {
		t.Errorf("VCState() = %+v, want nil for missing row", st)
	}
}

func TestUserSpeakerIDNotFound(t *testing.T) {
	t.Parallel()

	id, err := New(&mockDB{}).UserSpeakerID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("UserSpeakerID() error = %v", err)
	}
	if id != "" {
		t.Errorf("UserSpeakerID() = %q, want empty for missing row", id)
	}
}

func TestVoiceSpeedFound(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*(dest[0].(*float64)) = 1.3
				return nil
			}}
		},
	}
	speed, ok, err := New(db).VoiceSpeed(context.Background(), "g1")
	if err != nil {
		t.Fatalf("VoiceSpeed() error = %v", err)
	}
	if !ok || speed != 1.3 {
		t.Errorf("VoiceSpeed() = (%v, %v), want (1.3, true)", speed, ok)
	}
}

func TestAddBanIgnoresDuplicate(t *testing.T) {
	t.Parallel()

	db := &mockDB{
		execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		},
	}
	if err := New(db).AddBan(context.Background(), "u1"); err != nil {
		t.Fatalf("AddBan() on duplicate = %v, want nil", err)
	}
}

func TestInsertGuildCountPrunes(t *testing.T) {
	t.Parallel()

	var execs []string
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			execs = append(execs, sql)
			return pgconn.CommandTag{}, nil
		},
	}
	if err := New(db).InsertGuildCount(context.Background(), 42); err != nil {
		t.Fatalf("InsertGuildCount() error = %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("InsertGuildCount() ran %d statements, want insert + prune", len(execs))
	}
	if !strings.Contains(execs[1], "INTERVAL '1 day'") {
		t.Errorf("InsertGuildCount() second statement = %q, want the one-day prune", execs[1])
	}
}

func TestQueryErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
			return nil, boom
		},
	}
	_, err := New(db).Banlist(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Banlist() error = %v, want wrapped boom", err)
	}
	if !strings.HasPrefix(err.Error(), "store: ") {
		t.Errorf("Banlist() error = %q, want store: prefix", err)
	}
}
