package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/inful/docgen/internal/audit"
	"github.com/inful/docgen/internal/block"
	"github.com/inful/docgen/internal/config"
	"github.com/inful/docgen/internal/domain"
	"github.com/inful/docgen/internal/foundation/errors"
	"github.com/inful/docgen/internal/metrics"
	"github.com/inful/docgen/internal/pipeline"
	"github.com/inful/docgen/internal/queue"
	"github.com/inful/docgen/internal/rendering"
	"github.com/inful/docgen/internal/storage"
	"github.com/inful/docgen/internal/store"
)

// Set at build time with: -ldflags "-X main.version=1.0.0-rc1"
var version = "dev"

// CLI is the root command definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Migrate MigrateCmd `cmd:"" help:"Apply the SQLite schema and exit"`
	Worker  WorkerCmd  `cmd:"" help:"Run the worker scheduler, claiming and executing jobs"`
	Enqueue EnqueueCmd `cmd:"" help:"Enqueue a single job"`
	Recover RecoverCmd `cmd:"" help:"Reset stuck RUNNING jobs back to PENDING"`
	Audit   AuditCmd   `cmd:"" help:"List the audit trail for an entity or job"`
}

// Global is shared state threaded through every subcommand's Run method.
type Global struct {
	Logger *slog.Logger
}

func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// MigrateCmd opens the configured database, which applies the schema as
// a side effect of store.Open, then exits.
type MigrateCmd struct{}

func (m *MigrateCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = s.Close() }()
	fmt.Println("schema applied:", cfg.Database.DSN)
	return nil
}

// WorkerCmd runs the scheduler loop until interrupted.
type WorkerCmd struct {
	WorkerID string `help:"Worker identity recorded against claimed jobs (default: random)"`
}

func (w *WorkerCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, objects, q, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	defer func() { _ = objects.Close() }()

	workerID := w.WorkerID
	if workerID == "" {
		workerID = queue.NewWorkerID()
	}

	recorder := metrics.NewPrometheusQueueRecorder(nil)
	sched, err := queue.NewScheduler(q, s, workerID, cfg.Worker, recorder)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if cfg.LLM.APIKey().IsNone() {
		slog.Warn("no llm.api_key configured; section generation runs against the unconfigured noop LLM client until a real sectiongen.LLMClient is wired")
	}

	deps := pipeline.NewDependencies(s, objects, q, audit.New(s),
		unconfiguredParser{}, unconfiguredRenderer{}, nil, noopLLMClient{},
		cfg.LLM, cfg.Retry)

	sched.RegisterHandler(domain.JobParse, deps.ParseHandler)
	sched.RegisterHandler(domain.JobClassify, deps.ClassifyHandler)
	sched.RegisterHandler(domain.JobGenerate, deps.GenerateHandler)
	sched.RegisterHandler(domain.JobRegenerate, deps.RegenerateHandler)
	sched.RegisterHandler(domain.JobRegenerateSections, deps.RegenerateSectionsHandler)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("worker starting", "worker_id", workerID)
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler run: %w", err)
	}
	slog.Info("worker stopped", "worker_id", workerID)
	return nil
}

// EnqueueCmd enqueues a single job of the named type with the payload
// given by --payload as a JSON object.
type EnqueueCmd struct {
	Type    string `arg:"" help:"Job type: PARSE, CLASSIFY, GENERATE, REGENERATE, REGENERATE_SECTIONS"`
	Payload string `help:"Job payload as a JSON object" short:"p" default:"{}"`
}

func (e *EnqueueCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, _, q, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var payload map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	id, err := q.Enqueue(context.Background(), domain.JobType(e.Type), payload)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	fmt.Println("enqueued job:", id)
	return nil
}

// RecoverCmd runs one pass of stuck-job recovery outside the worker loop,
// useful for an operator to unstick a job without starting a full worker.
type RecoverCmd struct {
	Threshold string `help:"Override worker.stuck_job_threshold for this pass (Go duration, e.g. 10m)"`
}

func (r *RecoverCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	threshold := cfg.Worker.StuckJobThreshold
	if r.Threshold != "" {
		d, err := time.ParseDuration(r.Threshold)
		if err != nil {
			return fmt.Errorf("parse threshold: %w", err)
		}
		threshold = d
	}
	ids, err := s.FindStuckRunning(context.Background(), threshold)
	if err != nil {
		return fmt.Errorf("scan stuck jobs: %w", err)
	}
	reason := fmt.Sprintf("stuck RUNNING past %s threshold, reset by operator recover command", threshold)
	for _, id := range ids {
		if err := s.ResetToPending(context.Background(), id, reason); err != nil {
			return fmt.Errorf("reset job %s: %w", id, err)
		}
		fmt.Println("reset:", id)
	}
	fmt.Printf("recovered %d job(s)\n", len(ids))
	return nil
}

// AuditCmd lists the audit trail for an entity (--entity-type/--entity-id)
// or a job (--job-id).
type AuditCmd struct {
	EntityType string `help:"Entity type, e.g. DOCUMENT, TEMPLATE_VERSION"`
	EntityID   string `help:"Entity id"`
	JobID      string `help:"Job id (alternative to --entity-type/--entity-id)"`
	Limit      int    `help:"Maximum rows to return" default:"100"`
}

func (a *AuditCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = s.Close() }()

	log := audit.New(s)
	opts := store.ListOptions{Limit: a.Limit}

	var entries []audit.Entry
	if a.JobID != "" {
		entries, err = log.ListByJob(context.Background(), a.JobID, opts)
	} else {
		entries, err = log.ListByEntity(context.Background(), audit.EntityType(a.EntityType), a.EntityID, opts)
	}
	if err != nil {
		return fmt.Errorf("list audit entries: %w", err)
	}

	for _, e := range entries {
		fmt.Printf("%d\t%s\t%s\t%s\t%v\n", e.ID, e.EntityType, e.EntityID, e.Action, e.Metadata)
	}
	return nil
}

// openRuntime builds the persistence layer, object store, and job queue
// shared by the worker and enqueue subcommands.
func openRuntime(cfg *config.Config) (*store.Store, storage.Store, *queue.Queue, error) {
	s, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}

	objects, err := storage.NewFSStore(cfg.ObjectStore.BasePath)
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, fmt.Errorf("open object store: %w", err)
	}

	var notifier *queue.Notifier
	if cfg.Coordination.NATSURL != "" {
		notifier = queue.NewNotifier(cfg.Coordination.NATSURL, cfg.Coordination.Subject)
	}
	q := queue.New(s, notifier)

	return s, objects, q, nil
}

// unconfiguredParser is the Parser seam's default: parsing a binary
// office document is an external collaborator outside this module, so a
// deployment must supply a real implementation before PARSE jobs can run.
type unconfiguredParser struct{}

func (unconfiguredParser) Parse(_ context.Context, _ []byte) (block.ParsedDocument, error) {
	return block.ParsedDocument{}, fmt.Errorf("no document parser configured")
}

// unconfiguredRenderer is the Renderer seam's default: converting an
// assembled block tree back into a binary document is an external
// collaborator outside this module.
type unconfiguredRenderer struct{}

func (unconfiguredRenderer) Render(_ context.Context, _ domain.AssembledDocument) (rendering.Result, error) {
	return rendering.Result{}, fmt.Errorf("no document renderer configured")
}

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli,
		kong.Name("docgen"),
		kong.Description("Document generation platform: parses, classifies, generates, assembles, renders, and versions client documents from templates."),
		kong.Vars{"version": version},
	)

	logger := slog.Default()
	errorAdapter := errors.NewCLIErrorAdapter(cli.Verbose, logger)
	globals := &Global{Logger: logger}

	if err := parser.Run(globals, cli); err != nil {
		errorAdapter.HandleError(err)
	}
}

type noopLLMClient struct{}

func (noopLLMClient) Generate(_ context.Context, _ domain.GenerationInput) (string, error) {
	return "", fmt.Errorf("no section-generation LLM client configured")
}
