package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/campussync/internal/entity"
	"github.com/iudanet/campussync/internal/server/storage/sqlite"
)

type fakeInspector struct {
	err     error
	columns map[string][]string
}

func (f *fakeInspector) Tables(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	tables := make([]string, 0, len(f.columns))
	for t := range f.columns {
		tables = append(tables, t)
	}
	return tables, nil
}

func (f *fakeInspector) Columns(_ context.Context, table string) ([]string, error) {
	return f.columns[table], nil
}

func completeInspector() *fakeInspector {
	cols := map[string][]string{}
	for _, k := range entity.All() {
		cols[k.Table()] = append(entity.StructuringColumns(), entity.Columns(k)...)
	}
	return &fakeInspector{columns: cols}
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/00001_init.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
		"migrations/00002_more.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		"migrations/README.md":      {Data: []byte("ignored")},
		"other/00009_elsewhere.sql": {Data: []byte("ignored")},
	}
}

func TestProvider_Fingerprint(t *testing.T) {
	p, err := NewProvider(testFS(), "migrations")
	require.NoError(t, err)

	c := p.Canonical()
	assert.Len(t, c.Fingerprint, 64)
	assert.Equal(t, int64(2), c.Version)
	assert.Equal(t, []string{"00001_init.sql", "00002_more.sql"}, c.Files)

	// same content, same hash
	again, err := NewProvider(testFS(), "migrations")
	require.NoError(t, err)
	assert.Equal(t, c.Fingerprint, again.Canonical().Fingerprint)

	changed := testFS()
	changed["migrations/00002_more.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE b (id TEXT, x INT);")}
	other, err := NewProvider(changed, "migrations")
	require.NoError(t, err)
	assert.NotEqual(t, c.Fingerprint, other.Canonical().Fingerprint)
}

func TestProvider_Reload(t *testing.T) {
	src := testFS()
	p, err := NewProvider(src, "migrations")
	require.NoError(t, err)
	before := p.Canonical()

	src["migrations/00003_next.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE a ADD COLUMN y TEXT;")}
	after, err := p.Reload()
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.Version)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	assert.Equal(t, after, p.Canonical())

	delete(src, "migrations/00001_init.sql")
	delete(src, "migrations/00002_more.sql")
	delete(src, "migrations/00003_next.sql")
	_, err = p.Reload()
	require.Error(t, err)
	assert.Equal(t, after, p.Canonical(), "failed reload keeps previous definition")
}

func TestProvider_ReloadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00001_init.sql"), []byte("CREATE TABLE a (id TEXT);"), 0o600))

	p, err := NewProvider(os.DirFS(dir), ".")
	require.NoError(t, err)
	before := p.Canonical()
	assert.Equal(t, int64(1), before.Version)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "00002_more.sql"), []byte("CREATE TABLE b (id TEXT);"), 0o600))
	after, err := p.Reload()
	require.NoError(t, err)

	assert.Equal(t, int64(2), after.Version)
	assert.Equal(t, []string{"00001_init.sql", "00002_more.sql"}, after.Files)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		src  fstest.MapFS
		name string
	}{
		{name: "empty directory", src: fstest.MapFS{}},
		{name: "no version prefix", src: fstest.MapFS{"migrations/init.sql": {Data: []byte("x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.src, "migrations")
			assert.Error(t, err)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(testFS(), "migrations")
	require.NoError(t, err)
	canonical := p.Canonical()

	missingStudents := completeInspector()
	delete(missingStudents.columns, "students")

	noYear := completeInspector()
	noYear.columns["grades"] = []string{"id", "tenant_id", "status", "version", "created_at", "updated_at"}

	tests := []struct {
		inspector   *fakeInspector
		name        string
		fingerprint string
		wantError   string
		wantWarning string
		wantStatus  string
		version     int64
		wantValid   bool
	}{
		{
			name:        "matching fingerprint and version",
			inspector:   completeInspector(),
			fingerprint: canonical.Fingerprint,
			version:     canonical.Version,
			wantValid:   true,
			wantStatus:  "OK",
		},
		{
			name:        "fingerprint mismatch",
			inspector:   completeInspector(),
			fingerprint: "abc123",
			version:     canonical.Version,
			wantError:   "does not match canonical",
			wantStatus:  "INCOMPATIBLE",
		},
		{
			name:       "missing fingerprint",
			inspector:  completeInspector(),
			version:    canonical.Version,
			wantError:  "fingerprint is missing",
			wantStatus: "INCOMPATIBLE",
		},
		{
			name:        "version drift is a warning",
			inspector:   completeInspector(),
			fingerprint: canonical.Fingerprint,
			version:     1,
			wantValid:   true,
			wantWarning: "differs from canonical version",
			wantStatus:  "WARNING",
		},
		{
			name:        "missing essential table",
			inspector:   missingStudents,
			fingerprint: canonical.Fingerprint,
			version:     canonical.Version,
			wantError:   "essential table students is missing",
			wantStatus:  "INCOMPATIBLE",
		},
		{
			name:        "missing structuring column is a warning",
			inspector:   noYear,
			fingerprint: canonical.Fingerprint,
			version:     canonical.Version,
			wantValid:   true,
			wantWarning: "grades is missing structuring column academic_year_id",
			wantStatus:  "WARNING",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(p, tt.inspector)
			result, err := v.Validate(ctx, tt.fingerprint, tt.version)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantStatus, string(result.Status()))
			assert.Equal(t, canonical.Fingerprint, result.CanonicalFingerprint)
			if tt.wantError != "" {
				require.NotEmpty(t, result.Errors)
				assert.Contains(t, result.Errors[0], tt.wantError)
			} else {
				assert.Empty(t, result.Errors)
			}
			if tt.wantWarning != "" {
				require.NotEmpty(t, result.Warnings)
				assert.Contains(t, result.Warnings[0], tt.wantWarning)
			}

			gateErr := Gate(result)
			if tt.wantValid {
				assert.NoError(t, gateErr)
			} else {
				assert.ErrorIs(t, gateErr, ErrIncompatible)
			}
		})
	}
}

func TestValidator_InspectorFailure(t *testing.T) {
	p, err := NewProvider(testFS(), "migrations")
	require.NoError(t, err)

	v := NewValidator(p, &fakeInspector{err: errors.New("disk gone")})
	_, err = v.Validate(context.Background(), p.Canonical().Fingerprint, 2)
	assert.Error(t, err)

	_, err = v.Compare(context.Background(), nil)
	assert.Error(t, err)
}

func TestValidator_Compare(t *testing.T) {
	p, err := NewProvider(testFS(), "migrations")
	require.NoError(t, err)

	insp := completeInspector()
	v := NewValidator(p, insp)

	studentCols := append([]string{}, insp.columns["students"]...)
	studentCols = studentCols[:len(studentCols)-1] // drop birth_date
	studentCols = append(studentCols, "local_id")

	got, err := v.Compare(context.Background(), []TableColumns{
		{Table: "students", Columns: studentCols},
		{Table: "offline_drafts", Columns: []string{"id"}},
	})
	require.NoError(t, err)

	byTable := map[string]TableComparison{}
	for _, c := range got {
		byTable[c.Table] = c
	}

	require.Len(t, got, 5)
	assert.Equal(t, "enrollments", got[0].Table)

	students := byTable["students"]
	assert.True(t, students.ExistsInReplica)
	assert.True(t, students.ExistsInAuthoritative)
	assert.Equal(t, []string{"birth_date"}, students.MissingColumns)
	assert.Equal(t, []string{"local_id"}, students.ExtraColumns)

	drafts := byTable["offline_drafts"]
	assert.True(t, drafts.ExistsInReplica)
	assert.False(t, drafts.ExistsInAuthoritative)

	payments := byTable["payments"]
	assert.False(t, payments.ExistsInReplica)
	assert.True(t, payments.ExistsInAuthoritative)
	assert.Empty(t, payments.MissingColumns)
}

func TestValidator_AgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	p, err := NewProvider(sqlite.Migrations(), sqlite.MigrationsDir)
	require.NoError(t, err)

	v := NewValidator(p, store)
	result, err := v.Validate(ctx, p.Canonical().Fingerprint, p.Canonical().Version)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)
}
