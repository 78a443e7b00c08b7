package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"blitzai/internal/api"
	"blitzai/internal/assets"
	"blitzai/internal/infra"
	"blitzai/internal/job"
	"blitzai/internal/manager"
	"blitzai/internal/store"
	"blitzai/internal/telemetry"
)

const usageText = `usage: blitz <command> [flags]

commands:
  submit   submit a new job and optionally watch it to completion
  watch    watch an in-flight job until it reaches a terminal state
  list     list all locally known jobs
  fetch    download a completed job's results into a zip archive
  delete   remove a job from local records
`

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli{cfg: cfg, logger: logger}

	switch os.Args[1] {
	case "submit":
		err = app.submit(ctx, os.Args[2:])
	case "watch":
		err = app.watch(ctx, os.Args[2:])
	case "list":
		err = app.list(ctx)
	case "fetch":
		err = app.fetch(ctx, os.Args[2:])
	case "delete":
		err = app.delete(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

type cli struct {
	cfg    *infra.Config
	logger infra.Logger
}

// buildManager wires the configured store and API client into one manager.
// The updates channel observes every record change when watching.
func (c *cli) buildManager(ctx context.Context, updates chan job.Record) (*manager.Manager, error) {
	st, err := buildStore(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Options{
		BaseURL: c.cfg.APIBaseURL,
		APIKey:  c.cfg.APIKey,
		Logger:  &c.logger,
	})
	if err != nil {
		return nil, err
	}
	opts := manager.Options{
		Client:          client,
		Store:           st,
		Logger:          &c.logger,
		PollInterval:    c.cfg.PollInterval,
		MaxPollAttempts: c.cfg.MaxPollAttempts,
	}
	if updates != nil {
		opts.OnChange = func(rec job.Record) {
			select {
			case updates <- rec:
			default:
			}
		}
	}
	return manager.New(ctx, opts)
}

func buildStore(ctx context.Context, cfg *infra.Config) (store.Store, error) {
	switch cfg.JobStore {
	case infra.StoreRedis:
		return store.NewRedisStoreFromURL(cfg.RedisURL, "")
	case infra.StorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st, err := store.NewPostgresStore(pool)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return store.NewFileStore(cfg.JobStorePath)
	}
}

type stringSlice []string

func (s *stringSlice) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (c *cli) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	mode := fs.String("mode", string(api.ModeMagic), "job mode: magic, photoshoot, campaign or audit")
	description := fs.String("description", "", "campaign brief shown alongside the job")
	targetURL := fs.String("target-url", "", "site to audit (audit mode)")
	quality := fs.String("quality", job.QualityStandard, "generation quality: standard or hd")
	variations := fs.Int("variations", 1, "number of result variations")
	enhance := fs.Bool("enhance", false, "apply enhancement pass")
	watermark := fs.Bool("watermark", false, "add watermark to results")
	socialCopy := fs.Bool("social-copy", false, "generate social copy alongside results")
	watch := fs.Bool("watch", false, "stay attached until the job finishes")
	var files stringSlice
	fs.Var(&files, "file", "payload file, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	uploads := make([]manager.Upload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read payload %s: %w", path, err)
		}
		uploads = append(uploads, manager.Upload{
			Name:        filepath.Base(path),
			ContentType: contentTypeFor(path, data),
			Data:        data,
		})
	}

	opts := job.GenerationOptions{
		Quality:    *quality,
		Variations: *variations,
		Enhance:    *enhance,
		Watermark:  *watermark,
		SocialCopy: *socialCopy,
	}
	fmt.Printf("estimated cost: %d credits\n", opts.CostEstimate())

	updates := make(chan job.Record, 64)
	m, err := c.buildManager(ctx, updates)
	if err != nil {
		return err
	}

	rec, err := m.Submit(ctx, manager.SubmitRequest{
		Description: *description,
		TargetURL:   *targetURL,
		Mode:        api.Mode(*mode),
		Files:       uploads,
		Options:     opts,
	})
	if err != nil {
		return err
	}
	fmt.Printf("submitted job %s\n", rec.ID)

	if !*watch {
		return nil
	}
	return c.follow(ctx, m, updates, rec.ID)
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: blitz watch <job-id>")
	}
	id := fs.Arg(0)

	updates := make(chan job.Record, 64)
	m, err := c.buildManager(ctx, updates)
	if err != nil {
		return err
	}
	rec, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	if rec.State.Terminal() {
		printRecord(rec)
		return nil
	}
	return c.follow(ctx, m, updates, id)
}

// follow runs the polling engine until the given job turns terminal.
func (c *cli) follow(ctx context.Context, m *manager.Manager, updates chan job.Record, id string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = m.Run(runCtx) }()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("detached; the job keeps running remotely")
			return nil
		case rec := <-updates:
			if rec.ID != id {
				continue
			}
			printRecord(rec)
			if rec.State.Terminal() {
				return nil
			}
		}
	}
}

func (c *cli) list(ctx context.Context) error {
	m, err := c.buildManager(ctx, nil)
	if err != nil {
		return err
	}
	records := m.List()
	if len(records) == 0 {
		fmt.Println("no jobs recorded")
		return nil
	}
	for _, rec := range records {
		printRecord(rec)
	}
	return nil
}

func (c *cli) fetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	out := fs.String("out", "", "output archive path (defaults to <job-id>.zip)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: blitz fetch <job-id> [--out path]")
	}
	id := fs.Arg(0)

	m, err := c.buildManager(ctx, nil)
	if err != nil {
		return err
	}
	rec, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	if rec.State != job.StateCompleted {
		return fmt.Errorf("job %s is %s, not completed", id, rec.State)
	}

	archive, err := assets.NewFetcher(assets.Options{Logger: &c.logger}).FetchArchive(ctx, rec)
	if err != nil {
		return err
	}
	if len(archive) == 0 {
		fmt.Printf("job %s completed without downloadable results\n", id)
		return nil
	}

	path := *out
	if path == "" {
		path = id + ".zip"
	}
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(archive))
	return nil
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: blitz delete <job-id>")
	}
	id := fs.Arg(0)

	m, err := c.buildManager(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted job %s\n", id)
	return nil
}

func printRecord(rec job.Record) {
	label := rec.StateLabel
	if label == "" {
		label = string(rec.State)
	}
	line := fmt.Sprintf("%s  %-10s  %-20s  %s", rec.CreatedAt.Format(time.RFC3339), rec.State, label, rec.Description)
	if len(rec.ResultRefs) > 0 {
		line += fmt.Sprintf("  (%d results)", len(rec.ResultRefs))
	}
	fmt.Println(rec.ID)
	fmt.Println("  " + line)
	if rec.DerivedContent != "" {
		fmt.Println("  copy: " + rec.DerivedContent)
	}
}

func contentTypeFor(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
