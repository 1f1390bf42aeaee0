// likelemba is the collection engine behind the rotating savings funds:
// wallet ledger, contribution sweeps, penalties and cautions.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Moziba-Labs/likelemba/core/pkg/api"
	"github.com/Moziba-Labs/likelemba/core/pkg/auth"
	"github.com/Moziba-Labs/likelemba/core/pkg/caution"
	"github.com/Moziba-Labs/likelemba/core/pkg/config"
	"github.com/Moziba-Labs/likelemba/core/pkg/gateway"
	"github.com/Moziba-Labs/likelemba/core/pkg/ledger"
	"github.com/Moziba-Labs/likelemba/core/pkg/movement"
	"github.com/Moziba-Labs/likelemba/core/pkg/notify"
	"github.com/Moziba-Labs/likelemba/core/pkg/penalty"
	"github.com/Moziba-Labs/likelemba/core/pkg/scoring"
	"github.com/Moziba-Labs/likelemba/core/pkg/sweep"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "sweep":
		return runSweepCmd(stdout, stderr)
	case "migrate":
		return runMigrateCmd(stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: likelemba <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server    Start the HTTP server (default)")
	fmt.Fprintln(w, "  sweep     Run one collection sweep and print the summary")
	fmt.Fprintln(w, "  migrate   Apply the Postgres schema")
	fmt.Fprintln(w, "  health    Check a running server")
	fmt.Fprintln(w, "  help      Show this help")
}

// services is the wired object graph shared by server and sweep modes.
type services struct {
	cfg        *config.Config
	wallets    ledger.Store
	tontines   tontine.Store
	runner     *sweep.Runner
	reconciler *gateway.Reconciler
	scorer     *scoring.Scorer
	cautions   *caution.Manager
	close      func()
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		wallets   ledger.Store
		tontines  tontine.Store
		penalties penalty.Store
		cautions  caution.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		wallets = ledger.NewPostgresStore(db)
		tontines = tontine.NewPostgresStore(db)
		penalties = penalty.NewPostgresStore(db)
		cautions = caution.NewPostgresStore(db)
		logger.Info("stores: postgres")
	} else {
		wallets = ledger.NewMemoryStore()
		tontines = tontine.NewMemoryStore()
		penalties = penalty.NewMemoryStore()
		cautions = caution.NewMemoryStore()
		logger.Warn("stores: in-memory, data will not survive a restart")
	}

	var journal sweep.Journal
	sqliteDB, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	closers = append(closers, func() { _ = sqliteDB.Close() })
	journal, err = sweep.NewSQLiteJournal(sqliteDB)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init sweep journal: %w", err)
	}

	var lock sweep.DayLock
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		lock = sweep.NewRedisDayLock(client)
		logger.Info("day lock: redis", "addr", cfg.RedisAddr)
	} else {
		lock = sweep.NewMemoryDayLock()
		logger.Warn("day lock: in-memory, does not protect multiple processes")
	}

	// The card gateway is an external system; without credentials the
	// engine runs wallet-only and card charges fall back to manual
	// payment requests.
	var gw gateway.Gateway
	if cfg.GatewayAPIKey == "sandbox" {
		gw = gateway.NewStub()
		logger.Warn("gateway: sandbox stub")
	}

	profile, err := config.LoadTierProfile(cfg.ProfilesDir, cfg.DefaultTier)
	if err != nil {
		profile = config.DefaultTierProfile()
		logger.Info("tier profile: built-in default", "tier", profile.Tier)
	} else {
		logger.Info("tier profile: loaded", "tier", profile.Tier)
	}

	engine := movement.NewEngine(wallets)
	scorer := scoring.NewScorer(tontines, penalties)
	cautionMgr := caution.NewManager(cautions, tontines, engine, wallets, gw)
	penaltyEngine := penalty.NewEngine(penalties, tontines, engine)
	dispatcher := notify.NewDispatcher(nil) // outbound messaging is a separate service

	runner := sweep.NewRunner(
		tontines, wallets, engine, penaltyEngine, cautionMgr, scorer,
		gw, dispatcher, journal, lock,
		sweep.Policy{LateFeeMinor: profile.LateFeeMinor, Parallelism: profile.Parallelism},
	)
	reconciler := gateway.NewReconciler(wallets, engine)

	return &services{
		cfg:        cfg,
		wallets:    wallets,
		tontines:   tontines,
		runner:     runner,
		reconciler: reconciler,
		scorer:     scorer,
		cautions:   cautionMgr,
		close:      closeAll,
	}, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func runServer(stderr io.Writer) int {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svcs.close()

	server := api.NewServer(svcs.runner, svcs.reconciler, svcs.scorer, svcs.cautions, svcs.tontines)

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	mux := server.Routes(
		auth.RequireSecret(cfg.SweepSecret, http.HandlerFunc(server.HandleSweep)),
		auth.RequireOperator(validator, http.HandlerFunc(server.HandleRestitution)),
		auth.RequireOperator(validator, http.HandlerFunc(server.HandleSweepPreview)),
	)

	limiter := api.NewGlobalRateLimiter(20, 40)
	idem := api.IdempotencyMiddleware(api.NewIdempotencyStore(24 * time.Hour))
	handler := api.RequestIDMiddleware(limiter.Middleware(idem(mux)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "server failed: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "shutdown: %v\n", err)
			return 1
		}
	}
	return 0
}

func runSweepCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svcs.close()

	summary, err := svcs.runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "sweep failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "run %s: %d reminders, %d debits, %d penalties, %d exclusions, %d errors\n",
		summary.RunID, summary.RappelsEnvoyes, summary.PrelevementsEffectues,
		summary.PenalitesAppliquees, summary.Exclusions, len(summary.Erreurs))
	for _, e := range summary.Erreurs {
		fmt.Fprintf(stderr, "  cycle=%s user=%s: %s\n", e.CycleID, e.UserID, e.Message)
	}
	if summary.Skipped {
		fmt.Fprintln(stdout, "skipped: already ran today")
	}
	return 0
}

func runMigrateCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(stderr, "DATABASE_URL is required for migrate")
		return 2
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "open postgres: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	migrations := []struct {
		name string
		run  func(context.Context) error
	}{
		{"ledger", ledger.NewPostgresStore(db).Migrate},
		{"tontine", tontine.NewPostgresStore(db).Migrate},
		{"penalty", penalty.NewPostgresStore(db).Migrate},
		{"caution", caution.NewPostgresStore(db).Migrate},
	}
	for _, m := range migrations {
		if err := m.run(ctx); err != nil {
			fmt.Fprintf(stderr, "migrate %s: %v\n", m.name, err)
			return 1
		}
		fmt.Fprintf(stdout, "migrated: %s\n", m.name)
	}
	return 0
}

func runHealthCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}
