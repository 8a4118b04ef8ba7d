package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/field"
	"github.com/JonMunkholm/csvlint/internal/metrics"
	"github.com/JonMunkholm/csvlint/internal/schema"
)

type memoryStore struct {
	mu   sync.Mutex
	runs []*Report
	err  error
}

func (m *memoryStore) SaveRun(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return m.err
}

// countries(code) and people(name, country -> countries.code).
func testGroup(t *testing.T) *csvw.Group {
	t.Helper()
	countries := csvw.NewTable("http://example.org/countries.csv",
		csvw.NewColumn(1, "code", field.New("code", field.Constraints{Required: true})),
		csvw.NewColumn(2, "name", nil),
	)
	require.NoError(t, countries.SetPrimaryKey("code"))

	people := csvw.NewTable("http://example.org/people.csv",
		csvw.NewColumn(1, "name", nil),
		csvw.NewColumn(2, "age", field.New("age", field.Constraints{Type: field.TypeInteger})),
		csvw.NewColumn(3, "country", nil),
	)
	_, err := people.AddForeignKey([]string{"country"}, countries, []string{"code"})
	require.NoError(t, err)

	return &csvw.Group{Tables: []*csvw.Table{countries, people}}
}

func sources(named map[string]string, order ...string) []Source {
	out := make([]Source, 0, len(order))
	for _, name := range order {
		out = append(out, Source{Name: name, Reader: strings.NewReader(named[name])})
	}
	return out
}

// ----------------------------------------------------------------------------
// ValidateTables
// ----------------------------------------------------------------------------

func TestValidateTables_Valid(t *testing.T) {
	data := map[string]string{
		"countries.csv": "code,name\nAT,Austria\nDE,Germany\n",
		"people.csv":    "name,age,country\nAnna,31,AT\nBen,42,DE\n",
	}
	report, err := NewService().ValidateTables(context.Background(), testGroup(t),
		sources(data, "countries.csv", "people.csv"), Options{})
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 4, report.Rows())
	require.Len(t, report.Tables, 2)
	assert.Equal(t, "http://example.org/countries.csv", report.Tables[0].URL)
	assert.Equal(t, 2, report.Tables[1].Rows)
	assert.Equal(t, int64(len(data["people.csv"])), report.Tables[1].Bytes)
	assert.Empty(t, report.Errors)
	assert.NotNil(t, report.Errors)
}

func TestValidateTables_CollectsCellAndReferenceErrors(t *testing.T) {
	data := map[string]string{
		"countries.csv": "code,name\nAT,Austria\n,Nowhere\n",
		"people.csv":    "name,age,country\nAnna,old,AT\nBen,42,FR\n",
	}
	report, err := NewService(WithParallelism(2)).ValidateTables(context.Background(), testGroup(t),
		sources(data, "people.csv", "countries.csv"), Options{})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	people, countries := report.Tables[0], report.Tables[1]
	assert.False(t, people.Valid)
	assert.False(t, countries.Valid)

	require.Len(t, countries.Errors, 1)
	assert.Equal(t, diagnostic.MissingValue, countries.Errors[0].Kind)
	assert.Equal(t, 3, countries.Errors[0].Row)
	assert.Equal(t, "VAL001", countries.Errors[0].Code)

	got := map[diagnostic.Kind]int{}
	for _, d := range people.Errors {
		got[d.Kind] = d.Row
		assert.Equal(t, people.URL, d.Table)
		assert.Equal(t, diagnostic.SeverityError, d.Severity)
	}
	assert.Equal(t, map[diagnostic.Kind]int{
		diagnostic.InvalidType:                  2,
		diagnostic.UnmatchedForeignKeyReference: 3,
	}, got)
	assert.Len(t, report.Errors, 3)
}

func TestValidateTables_StructuralSkipsKeys(t *testing.T) {
	data := map[string]string{
		"countries.csv": "code,name\nAT,Austria\nAT,Again\n",
		"people.csv":    "name,age,country\nBen,42,FR\n",
	}
	report, err := NewService().ValidateTables(context.Background(), testGroup(t),
		sources(data, "countries.csv", "people.csv"), Options{Structural: true})
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestValidateTables_StrictHeaders(t *testing.T) {
	data := map[string]string{"countries.csv": "code,name,extra\nAT,Austria\n"}

	lax, err := NewService().ValidateTables(context.Background(), testGroup(t),
		sources(data, "countries.csv"), Options{})
	require.NoError(t, err)
	assert.True(t, lax.Valid)
	require.NotEmpty(t, lax.Warnings)
	assert.Equal(t, diagnostic.MalformedHeader, lax.Warnings[0].Kind)

	strict, err := NewService().ValidateTables(context.Background(), testGroup(t),
		sources(data, "countries.csv"), Options{Strict: true})
	require.NoError(t, err)
	assert.False(t, strict.Valid)
}

func TestValidateTables_Errors(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	_, err := svc.ValidateTables(ctx, testGroup(t), nil, Options{})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = svc.ValidateTables(ctx, testGroup(t),
		[]Source{{Name: "planets.csv", Reader: strings.NewReader("a\n")}}, Options{})
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Equal(t, "FILE004", MapError(err).Code)

	_, err = svc.ValidateTables(ctx, testGroup(t), []Source{
		{Name: "countries.csv", Reader: strings.NewReader("code\n")},
		{Name: "http://example.org/countries.csv", Reader: strings.NewReader("code\n")},
	}, Options{})
	assert.ErrorContains(t, err, "both match table countries.csv")

	_, err = svc.ValidateTables(ctx, testGroup(t),
		[]Source{{Name: "countries.csv", Reader: io.MultiReader(
			strings.NewReader("code,name\n"), iotest.ErrReader(errors.New("connection reset")))}}, Options{})
	assert.ErrorContains(t, err, "invalid csv countries.csv: connection reset")
}

func TestValidateTables_RecordsMetricsAndStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	store := &memoryStore{err: errors.New("disk full")}
	svc := NewService(WithMetrics(m), WithStore(store))

	data := map[string]string{"countries.csv": "code,name\n,Nowhere\n"}
	ctx := ContextWithIPAddress(context.Background(), "10.0.0.1")
	report, err := svc.ValidateTables(ctx, testGroup(t), sources(data, "countries.csv"), Options{})
	require.NoError(t, err, "a failing store must not fail the run")

	require.Len(t, store.runs, 1)
	assert.Same(t, report, store.runs[0])
	assert.Equal(t, "10.0.0.1", report.Client.IPAddress)

	count, err := testutil.GatherAndCount(reg, "csvlint_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = testutil.GatherAndCount(reg, "csvlint_diagnostics_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestValidateTables_LimiterBusy(t *testing.T) {
	l := NewLimiter(1, 10*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	data := map[string]string{"countries.csv": "code,name\n"}
	_, err := NewService(WithLimiter(l)).ValidateTables(context.Background(), testGroup(t),
		sources(data, "countries.csv"), Options{})
	assert.ErrorIs(t, err, ErrTooManyRuns)
}

func TestValidateTables_ConcurrentRunsAreIsolated(t *testing.T) {
	group := testGroup(t)
	svc := NewService(WithParallelism(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := map[string]string{"countries.csv": "code,name\nAT,Austria\n"}
			report, err := svc.ValidateTables(context.Background(), group,
				sources(data, "countries.csv"), Options{})
			if assert.NoError(t, err) {
				assert.True(t, report.Valid, "an earlier run's keys leaked into this one")
			}
		}()
	}
	wg.Wait()
}

// ----------------------------------------------------------------------------
// ValidateSchema
// ----------------------------------------------------------------------------

func TestValidateSchema(t *testing.T) {
	sch := schema.New("people.json",
		field.New("name", field.Constraints{Required: true}),
		field.New("age", field.Constraints{Type: field.TypeInteger}),
	)
	report, err := NewService().ValidateSchema(context.Background(), sch,
		Source{Name: "people.csv", Reader: strings.NewReader("name,age\nAnna,31\n,x\n")})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	require.Len(t, report.Tables, 1)
	assert.Equal(t, "people.csv", report.Tables[0].URL)
	assert.Equal(t, 2, report.Rows())

	var got []diagnostic.Kind
	for _, d := range report.Errors {
		got = append(got, d.Kind)
	}
	assert.ElementsMatch(t, []diagnostic.Kind{diagnostic.MissingValue, diagnostic.InvalidType}, got)
}

func TestValidateSchema_NoReader(t *testing.T) {
	_, err := NewService().ValidateSchema(context.Background(), schema.New("s.json"), Source{})
	assert.ErrorIs(t, err, ErrNoFiles)
}
