// Package worker runs the poll, fetch and push cycle: it discovers
// documents carrying stamp triggers, claims them, stamps page 1 and pushes
// the result back as a new version.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pdfmerge"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/service"
	"github.com/inkstamp/paperless-stamp/stamp"
	"github.com/inkstamp/paperless-stamp/store"
	"github.com/inkstamp/paperless-stamp/tagstate"
)

// VersionLabel is attached to every pushed version
const VersionLabel = "stamped"

// DefaultSlowDocument is the per-document latency budget
const DefaultSlowDocument = 5 * time.Second

// ErrCycleRunning is returned when a cycle is requested while one runs
var ErrCycleRunning = errors.New("a poll cycle is already running")

// Client is the paperless API surface the worker uses
type Client interface {
	tagstate.Client
	ListStampable(ctx context.Context) ([]model.Document, error)
	Download(ctx context.Context, id int, original bool) ([]byte, error)
	UploadVersion(ctx context.Context, id int, pdf []byte, label string) error
}

// Archiver keeps a copy of every stamped PDF
type Archiver interface {
	Store(ctx context.Context, documentID int, cycleID string, pdf []byte) (string, error)
}

// Config wires the worker's collaborators. Archive and Metrics are optional.
type Config struct {
	Client       Client
	Journal      store.Journal
	History      store.History
	Resolver     *config.Resolver
	Archive      Archiver
	Metrics      *Metrics
	SlowDocument time.Duration
}

// CycleReport summarizes one poll cycle
type CycleReport struct {
	CycleID    string               `json:"cycle_id"`
	StartedAt  time.Time            `json:"started_at"`
	DurationMS int64                `json:"duration_ms"`
	Documents  int                  `json:"documents"`
	Reconciled int                  `json:"reconciled"`
	Outcomes   []model.StampOutcome `json:"outcomes"`
	Error      string               `json:"error,omitempty"`
}

// Status is a snapshot of the worker for health reporting
type Status struct {
	Running   bool         `json:"running"`
	LastCycle *CycleReport `json:"last_cycle,omitempty"`
}

// Worker runs poll cycles one at a time
type Worker struct {
	client       Client
	machine      *tagstate.Machine
	merger       *pdfmerge.Merger
	resolver     *config.Resolver
	history      store.History
	archive      Archiver
	metrics      *Metrics
	slowDocument time.Duration

	running atomic.Bool
	trigger chan struct{}

	mu   sync.RWMutex
	last *CycleReport

	now func() time.Time
}

// New creates a worker
func New(cfg Config) (*Worker, error) {
	if cfg.Client == nil || cfg.Journal == nil || cfg.History == nil || cfg.Resolver == nil {
		return nil, errors.New("worker requires a client, journal, history and resolver")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		var err error
		if metrics, err = NewMetrics(nil); err != nil {
			return nil, err
		}
	}
	slow := cfg.SlowDocument
	if slow <= 0 {
		slow = DefaultSlowDocument
	}
	return &Worker{
		client:       cfg.Client,
		machine:      tagstate.NewMachine(cfg.Client, cfg.Journal),
		merger:       pdfmerge.NewMerger(),
		resolver:     cfg.Resolver,
		history:      cfg.History,
		archive:      cfg.Archive,
		metrics:      metrics,
		slowDocument: slow,
		trigger:      make(chan struct{}, 1),
		now:          time.Now,
	}, nil
}

// Run executes cycles until ctx is cancelled. The next cycle is scheduled
// one poll interval after the previous one finished, so cycles never
// overlap. The interval is re-read after every cycle.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info(ctx, "stamp worker started")
	for {
		if _, err := w.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleRunning) {
			logger.Error(ctx, "poll cycle failed", "error", err)
		}

		interval := w.resolver.Current(ctx).PollInterval
		if interval <= 0 {
			interval = config.DefaultPollInterval * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info(ctx, "stamp worker stopped")
			return nil
		case <-w.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// TriggerNow asks Run to start the next cycle immediately. It reports
// false when a cycle is running or a trigger is already queued.
func (w *Worker) TriggerNow() bool {
	if w.running.Load() {
		return false
	}
	select {
	case w.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns the current worker state
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{Running: w.running.Load(), LastCycle: w.last}
}

// cycle carries per-cycle state through document processing
type cycle struct {
	id       string
	settings config.StampSettings
	renderer *stamp.Renderer
}

// RunCycle performs one poll cycle. Cancelling ctx stops the cycle after
// the document in flight has been settled.
func (w *Worker) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer w.running.Store(false)

	c := &cycle{id: uuid.NewString()}
	ctx = logger.WithCycle(ctx, c.id)
	report := &CycleReport{CycleID: c.id, StartedAt: w.now()}

	err := w.runCycle(ctx, c, report)
	elapsed := w.now().Sub(report.StartedAt)
	report.DurationMS = elapsed.Milliseconds()
	if err != nil {
		report.Error = err.Error()
	}
	w.metrics.recordCycle(ctx, elapsed, err != nil)

	w.mu.Lock()
	w.last = report
	w.mu.Unlock()

	logger.Info(ctx, "poll cycle finished",
		"documents", report.Documents,
		"outcomes", len(report.Outcomes),
		"reconciled", report.Reconciled,
		"duration_ms", report.DurationMS,
	)
	return report, err
}

func (w *Worker) runCycle(ctx context.Context, c *cycle, report *CycleReport) error {
	c.settings = w.resolver.Current(ctx)
	c.renderer = stamp.NewRenderer(c.settings.Opacity)

	if err := w.machine.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh tag index: %w", err)
	}

	settled, err := w.machine.Reconcile(ctx)
	report.Reconciled = settled
	if err != nil {
		logger.Warn(ctx, "claim reconciliation incomplete", "error", err)
	}

	docs, err := w.client.ListStampable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stampable documents: %w", err)
	}
	logger.Debug(ctx, "discovered documents", "count", len(docs))

	// in-flight documents finish even when ctx is cancelled
	work := context.WithoutCancel(ctx)
	for i := range docs {
		if ctx.Err() != nil {
			logger.Info(ctx, "shutdown requested, stopping cycle", "remaining", len(docs)-i)
			break
		}
		outcomes := w.processDocument(work, c, &docs[i])
		if len(outcomes) > 0 {
			report.Documents++
			report.Outcomes = append(report.Outcomes, outcomes...)
		}
	}
	return nil
}

// job is one stamp type being applied to the current document
type job struct {
	stampType string
	request   model.StampRequest
	err       error
}

// processDocument runs claim, stamp and finalize for one document. Failures
// and panics are converted into error outcomes and never escape.
func (w *Worker) processDocument(ctx context.Context, c *cycle, doc *model.Document) (outcomes []model.StampOutcome) {
	ctx = logger.WithDocument(ctx, doc.ID)
	start := w.now()

	var jobs []*job
	claimed, settling := false, false
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "panic while processing document", "panic", r, "stack", string(debug.Stack()))
			if claimed && !settling {
				outcomes = w.settle(ctx, c, doc, jobs, false, fmt.Errorf("internal error: %v", r), start)
			}
		}
		if claimed {
			w.observe(ctx, start)
		}
	}()

	plan := w.machine.Plan(doc)
	if plan.Empty() {
		return nil
	}

	if err := w.machine.Claim(ctx, plan, c.id); err != nil {
		logger.Warn(ctx, "failed to claim document, triggers kept for the next cycle", "error", err)
		return w.record(ctx, c, doc, w.prepare(c.settings, doc, plan.Pending, err), start)
	}
	claimed = true
	if len(plan.Pending) == 0 {
		return nil
	}

	jobs = w.prepare(c.settings, doc, plan.Pending, nil)
	pushed, err := w.stamp(ctx, c, doc, jobs)
	settling = true
	return w.settle(ctx, c, doc, jobs, pushed, err, start)
}

// prepare resolves the request of every pending type in stacking order.
// Types whose configuration cannot be resolved fail on their own.
func (w *Worker) prepare(settings config.StampSettings, doc *model.Document, pending []string, cause error) []*job {
	jobs := make([]*job, 0, len(pending))
	for _, t := range settings.Order(pending) {
		j := &job{stampType: t, request: model.StampRequest{DocumentID: doc.ID, StampType: t}, err: cause}
		if cause != nil {
			jobs = append(jobs, j)
			continue
		}
		ts, err := settings.Lookup(t)
		if err != nil {
			j.err = &model.ConfigError{StampType: t, Reason: "cannot resolve stamp type", Err: err}
			jobs = append(jobs, j)
			continue
		}
		j.request.DisplayText = ts.Text
		j.request.Color = ts.Color
		j.request.Opacity = settings.Opacity
		j.request.StampDate = w.machine.ResolveDate(doc, ts)
		jobs = append(jobs, j)
	}
	return jobs
}

// stamp downloads the document, merges every resolvable stamp in one pass
// and pushes the result. It reports whether a version was pushed.
func (w *Worker) stamp(ctx context.Context, c *cycle, doc *model.Document, jobs []*job) (bool, error) {
	var ready []*job
	for _, j := range jobs {
		if j.err == nil {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return false, nil
	}

	original := !doc.HasArchive()
	src, err := w.client.Download(ctx, doc.ID, original)
	if err != nil {
		return false, fmt.Errorf("failed to download document: %w", err)
	}
	logger.Debug(ctx, "downloaded document", "bytes", len(src), "original", original)

	geom, err := w.merger.Inspect(src)
	if err != nil {
		return false, err
	}

	overlays := make([]*stamp.Overlay, 0, len(ready))
	seq := 0
	for _, j := range ready {
		req := j.request
		req.SequenceIndex = seq
		o, err := c.renderer.Render(req, geom.Width, geom.Height)
		var cfgErr *model.ConfigError
		if errors.As(err, &cfgErr) {
			j.err = err
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to render %s stamp: %w", j.stampType, err)
		}
		j.request = o.Request
		overlays = append(overlays, o)
		seq++
	}
	if len(overlays) == 0 {
		return false, nil
	}

	out, err := w.merger.Merge(src, overlays)
	if err != nil {
		return false, err
	}

	if err := w.client.UploadVersion(ctx, doc.ID, out, VersionLabel); err != nil {
		return false, fmt.Errorf("failed to upload stamped version: %w", err)
	}

	types := make([]string, 0, len(overlays))
	for _, o := range overlays {
		types = append(types, o.Request.StampType)
	}
	if err := w.machine.MarkPushed(ctx, doc.ID, types, c.id); err != nil {
		logger.Warn(ctx, "failed to journal pushed claim, retrying", "error", err)
		if err := w.machine.MarkPushed(ctx, doc.ID, types, c.id); err != nil {
			logger.Warn(ctx, "failed to journal pushed claim", "error", err)
		}
	}
	logger.Info(ctx, "pushed stamped version", "stamp_types", types, "bytes", len(out))

	if w.archive != nil {
		name, err := w.archive.Store(ctx, doc.ID, c.id, out)
		if err != nil {
			logger.Warn(ctx, "failed to archive stamped document", "error", err)
		} else {
			logger.Debug(ctx, "archived stamped document", "object", name)
		}
	}
	return true, nil
}

// settle applies the final tag transition and records one outcome per
// job. Transient failures restore the triggers; content and configuration
// failures tag stamp:error with a note.
func (w *Worker) settle(ctx context.Context, c *cycle, doc *model.Document, jobs []*job, pushed bool, docErr error, start time.Time) []model.StampOutcome {
	transient := docErr != nil && !pdfmerge.IsUnsupported(docErr) && service.IsTransient(docErr)

	var done, retry, failed, causes []string
	if docErr != nil && !transient {
		causes = append(causes, docErr.Error())
	}
	for _, j := range jobs {
		switch {
		case j.err != nil:
			failed = append(failed, j.stampType)
			causes = append(causes, j.err.Error())
		case docErr != nil:
			j.err = docErr
			if transient {
				retry = append(retry, j.stampType)
			} else {
				failed = append(failed, j.stampType)
			}
		case pushed:
			done = append(done, j.stampType)
		}
	}

	keep := false
	if err := w.machine.FinalizeDone(ctx, doc.ID, done); err != nil {
		logger.Error(ctx, "failed to add done tags, claim left for reconciliation", "error", err)
		keep = true
		// a claimed entry would restore the triggers and stamp again
		if err := w.machine.MarkPushed(ctx, doc.ID, done, c.id); err != nil {
			logger.Error(ctx, "failed to journal pushed claim", "error", err)
		}
	}
	if len(retry) > 0 {
		logger.Warn(ctx, "transient failure, restoring triggers", "stamp_types", retry, "error", docErr)
		if err := w.machine.RestoreTriggers(ctx, doc.ID, retry); err != nil {
			logger.Error(ctx, "failed to restore triggers, claim left for reconciliation", "error", err)
			keep = true
		}
	}
	if len(failed) > 0 {
		if err := w.machine.FinalizeError(ctx, doc.ID, strings.Join(causes, "; ")); err != nil {
			logger.Error(ctx, "failed to flag document as failed", "error", err)
		}
	}
	if !keep {
		w.machine.Release(ctx, doc.ID)
	}

	return w.record(ctx, c, doc, jobs, start)
}

// record stores one outcome per job in the history
func (w *Worker) record(ctx context.Context, c *cycle, doc *model.Document, jobs []*job, start time.Time) []model.StampOutcome {
	elapsed := w.now().Sub(start)
	outcomes := make([]model.StampOutcome, 0, len(jobs))
	for _, j := range jobs {
		o := model.StampOutcome{
			CycleID:       c.id,
			DocumentID:    doc.ID,
			DocumentTitle: doc.DisplayTitle(),
			StampType:     j.stampType,
			StampText:     j.request.DisplayText,
			StampDate:     j.request.StampDate,
			SequenceIndex: j.request.SequenceIndex,
			Status:        model.StatusSuccess,
			DurationMS:    elapsed.Milliseconds(),
			CreatedAt:     w.now(),
		}
		if j.err != nil {
			o.Status = model.StatusError
			o.ErrorMessage = j.err.Error()
			o.SequenceIndex = model.NoSequence
		}

		typeCtx := logger.WithStampType(ctx, j.stampType)
		if err := w.history.Record(typeCtx, &o); err != nil {
			logger.Warn(typeCtx, "failed to record outcome", "error", err)
		}
		w.metrics.recordOutcome(typeCtx, j.stampType, o.Status)
		if o.Succeeded() {
			logger.Info(typeCtx, "stamp applied", "sequence_index", o.SequenceIndex, "stamp_date", o.StampDate)
		} else {
			logger.Warn(typeCtx, "stamp failed", "error", o.ErrorMessage)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (w *Worker) observe(ctx context.Context, start time.Time) {
	elapsed := w.now().Sub(start)
	slow := elapsed > w.slowDocument
	if slow {
		logger.Warn(ctx, "document processing exceeded latency budget",
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", w.slowDocument.Milliseconds(),
		)
	}
	w.metrics.recordDocument(ctx, elapsed, slow)
}
