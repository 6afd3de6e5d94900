package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"job-compass/internal/analytics"
	"job-compass/internal/api"
	"job-compass/internal/collab"
	"job-compass/internal/gap"
	"job-compass/internal/importer"
	"job-compass/internal/logger"
	"job-compass/internal/matching"
	"job-compass/internal/notifier"
	"job-compass/internal/pipeline"
	"job-compass/internal/scheduler"
	"job-compass/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
	Email     notifier.EmailConfig `yaml:"email"`
	Goals     analytics.Goals      `yaml:"goals"`
	Gap       gap.Config           `yaml:"gap"`
	AI        collab.AIConfig      `yaml:"ai"`
	Log       logger.Config        `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// jobScheduler 抽象调度器，便于测试替换。
type jobScheduler interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (int, error)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// appDeps 持有装配完成的应用组件。
type appDeps struct {
	handler http.Handler
	sched   jobScheduler
	logger  *zap.Logger
}

func main() {
	once := flag.Bool("once", false, "run one reminder sweep and exit")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		reminders, err := runOnceManual(ctx, cfg, buildDeps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "manual sweep: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("reminders sent: %d\n", reminders)
		return
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build dependencies: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: deps.handler}

	deps.logger.Info("listening", zap.String("addr", addr))
	if err := runServer(ctx, srv, deps.sched, 5*time.Second); err != nil {
		deps.logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// runServer 运行 HTTP 服务与调度循环，上下文取消时优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched jobScheduler, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	if sched != nil {
		g.Go(func() error {
			if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runOnceManual 装配依赖并执行单次巡检，供 -once 模式使用。
func runOnceManual(ctx context.Context, cfg AppConfig, build func(AppConfig) (appDeps, func(), error)) (int, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return 0, fmt.Errorf("build dependencies: %w", err)
	}
	defer cleanup()

	return deps.sched.RunOnce(ctx)
}

func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	logr, err := logger.New(cfg.Log)
	if err != nil {
		return appDeps{}, nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "jobs.db"
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return appDeps{}, nil, fmt.Errorf("init store: %w", err)
	}

	engine := pipeline.NewEngine(store, logr)
	notif := buildNotifier(cfg.Email, logr)
	sched := scheduler.NewScheduler(store, notif, logr, cfg.Scheduler)

	var ai collab.AIContentGenerator
	if cfg.AI.APIKey != "" {
		ai = collab.NewAIClient(cfg.AI, nil)
	} else {
		logr.Info("ai generation disabled: missing api key")
	}

	handler := api.NewHandler(api.Deps{
		Store:     store,
		Pipeline:  engine,
		Matcher:   matching.NewEngine(nil),
		Gap:       gap.NewAnalyzer(cfg.Gap, nil, logr),
		Importer:  importer.NewImporter(nil, logr),
		Scheduler: sched,
		AI:        ai,
		Goals:     cfg.Goals,
	})

	cleanup := func() {
		_ = store.Close()
		_ = logr.Sync()
	}
	return appDeps{handler: handler, sched: sched, logger: logr}, cleanup, nil
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// buildNotifier 根据配置选择邮件或日志通知器。
func buildNotifier(cfg notifier.EmailConfig, logr *zap.Logger) scheduler.Notifier {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" || len(cfg.To) == 0 {
		logr.Info("email notifier disabled, logging reminders instead")
		return notifier.NewLogNotifier(logr)
	}
	return notifier.NewEmailNotifier(cfg, nil)
}
