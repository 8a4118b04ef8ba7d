package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvlint/internal/csvw"
	"github.com/JonMunkholm/csvlint/internal/diagnostic"
	"github.com/JonMunkholm/csvlint/internal/logging"
	"github.com/JonMunkholm/csvlint/internal/metrics"
	"github.com/JonMunkholm/csvlint/internal/schema"
)

var (
	// ErrNoFiles is returned when a run is started without any table data.
	ErrNoFiles = errors.New("no file provided")

	// ErrUnknownTable is returned when a file matches no described table.
	ErrUnknownTable = errors.New("no table described")
)

// ctxCheckInterval is how many rows are read between cancellation checks.
const ctxCheckInterval = 1000

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r *Report) error
}

// Source is the data of one table. Name is matched against table URLs,
// falling back to the last path segment.
type Source struct {
	Name   string
	Reader io.Reader
}

// Options control a single run.
type Options struct {
	// Strict turns header title mismatches and surplus headers into errors.
	Strict bool

	// Structural skips key indexing and foreign key reconciliation.
	Structural bool
}

// Service runs validations. It is safe for concurrent use; every run gets
// its own session state.
type Service struct {
	limiter     *Limiter
	metrics     *metrics.Collector
	store       RunStore
	parallelism int
	timeout     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter bounds concurrent runs.
func WithLimiter(l *Limiter) Option { return func(s *Service) { s.limiter = l } }

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Collector) Option { return func(s *Service) { s.metrics = m } }

// WithStore saves every finished run.
func WithStore(st RunStore) Option { return func(s *Service) { s.store = st } }

// WithParallelism sets how many tables of one run are read at once.
func WithParallelism(n int) Option { return func(s *Service) { s.parallelism = n } }

// WithTimeout bounds each run.
func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

// NewService creates a Service. Without options runs are unbounded,
// sequential and not persisted.
func NewService(opts ...Option) *Service {
	s := &Service{parallelism: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism <= 0 {
		s.parallelism = 1
	}
	return s
}

// Limiter returns the run limiter, or nil.
func (s *Service) Limiter() *Limiter {
	return s.limiter
}

// ValidateTables validates sources against the tables of group. Phase 1
// reads the tables, up to the configured parallelism at a time; phase 2
// reconciles foreign keys once every table has been read.
func (s *Service) ValidateTables(ctx context.Context, group *csvw.Group, sources []Source, opts Options) (*Report, error) {
	if len(sources) == 0 {
		return nil, ErrNoFiles
	}
	tables := make([]*csvw.Table, len(sources))
	seen := make(map[*csvw.Table]string, len(sources))
	for i, src := range sources {
		t, ok := group.Table(src.Name)
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrUnknownTable, src.Name)
		}
		if prev, dup := seen[t]; dup {
			return nil, fmt.Errorf("files %s and %s both match table %s", prev, src.Name, t.Name())
		}
		seen[t] = src.Name
		tables[i] = t
	}

	return s.run(ctx, func(ctx context.Context, report *Report) error {
		logger := logging.FromContext(ctx)
		session := csvw.NewSession(tables...)
		for _, v := range session.Validators() {
			if _, provided := seen[v.Table()]; !provided {
				logger.Warn("referenced table has no data", "table", v.Table().URL)
			}
		}

		report.Tables = make([]TableReport, len(tables))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism)
		for i := range sources {
			g.Go(func() error {
				tr, err := readTable(gctx, session.Table(tables[i]), sources[i], opts)
				report.Tables[i] = tr
				if err == nil {
					logger.Debug("table read", "table", tr.URL, "rows", tr.Rows,
						"errors", len(tr.Errors), "warnings", len(tr.Warnings))
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if opts.Structural {
			return nil
		}
		session.ValidateForeignKeys()
		for i, t := range tables {
			v := session.Table(t)
			report.Tables[i].add(v.Errors(), diagnostic.SeverityError)
			report.Tables[i].add(v.Warnings(), diagnostic.SeverityWarning)
		}
		return nil
	})
}

// ValidateSchema validates a single file against a JSON Table Schema.
func (s *Service) ValidateSchema(ctx context.Context, sch *schema.Schema, src Source) (*Report, error) {
	if src.Reader == nil {
		return nil, ErrNoFiles
	}
	return s.run(ctx, func(ctx context.Context, report *Report) error {
		v := schema.NewValidator(sch)
		name := src.Name
		if name == "" {
			name = sch.URI
		}
		tr := newTableReport(name)
		bytes, err := scan(ctx, src, func(record []string, row int) {
			if row == 1 {
				v.ValidateHeader(record)
			} else {
				v.ValidateRow(record, row)
				tr.Rows++
			}
			tr.add(v.Errors(), diagnostic.SeverityError)
			tr.add(v.Warnings(), diagnostic.SeverityWarning)
		})
		tr.Bytes = bytes
		report.Tables = []TableReport{tr}
		return err
	})
}

// run wraps a validation with admission control, a run id, a timeout,
// metrics, logging and persistence.
func (s *Service) run(ctx context.Context, validate func(context.Context, *Report) error) (*Report, error) {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.metrics.Rejected(rejectReason(err))
			return nil, err
		}
		defer s.limiter.Release()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC(),
		Client:    ClientFromContext(ctx),
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.FromContext(ctx)

	s.metrics.RunStarted()
	if err := validate(ctx, report); err != nil {
		s.metrics.RunFinished("error", report.Rows(), time.Since(started))
		logger.Error("validation run failed", "error", err)
		return nil, err
	}
	report.finish(started)
	s.metrics.RunFinished(report.Result(), report.Rows(), report.Duration)
	for _, d := range report.Errors {
		s.metrics.Diagnostic(d.Kind.String(), string(d.Severity))
	}
	for _, d := range report.Warnings {
		s.metrics.Diagnostic(d.Kind.String(), string(d.Severity))
	}

	logger.Info("validation run finished",
		"valid", report.Valid,
		"tables", len(report.Tables),
		"rows", report.Rows(),
		"errors", len(report.Errors),
		"warnings", len(report.Warnings),
		"duration", report.Duration,
	)

	if s.store != nil {
		if err := s.store.SaveRun(ctx, report); err != nil {
			logger.Warn("failed to save run", "error", err)
		}
	}
	return report, nil
}

func rejectReason(err error) string {
	if errors.Is(err, ErrTooManyRuns) {
		return "busy"
	}
	return "cancelled"
}

func newTableReport(url string) TableReport {
	return TableReport{URL: url, Errors: []Diagnostic{}, Warnings: []Diagnostic{}}
}

func readTable(ctx context.Context, v *csvw.TableValidator, src Source, opts Options) (TableReport, error) {
	t := v.Table()
	tr := newTableReport(t.URL)
	tr.add(t.Warnings, diagnostic.SeverityWarning)

	full := !opts.Structural
	bytes, err := scan(ctx, src, func(record []string, row int) {
		if row == 1 {
			v.ValidateHeader(record, opts.Strict)
		} else {
			v.ValidateRow(record, row, full)
			tr.Rows++
		}
		tr.add(v.Errors(), diagnostic.SeverityError)
		tr.add(v.Warnings(), diagnostic.SeverityWarning)
	})
	tr.Bytes = bytes
	return tr, err
}

// scan feeds every CSV record of src to fn with its 1-based row number.
func scan(ctx context.Context, src Source, fn func(record []string, row int)) (int64, error) {
	cr, counter := NewCSVReader(src.Reader)
	for row := 1; ; row++ {
		if row%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return counter.BytesRead(), err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return counter.BytesRead(), nil
		}
		if err != nil {
			return counter.BytesRead(), fmt.Errorf("invalid csv %s: %w", src.Name, err)
		}
		fn(record, row)
	}
}
