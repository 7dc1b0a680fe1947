package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/choraleia/analyst/pkg/agent"
	"github.com/choraleia/analyst/pkg/config"
	"github.com/choraleia/analyst/pkg/db"
	"github.com/choraleia/analyst/pkg/event"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/service"
	"github.com/choraleia/analyst/pkg/tools/database"
	"github.com/choraleia/analyst/pkg/utils"
)

func main() {
	configFile := flag.String("config", "", "config file (default ~/.analyst/config.yaml or $ANALYST_CONFIG)")
	question := flag.String("q", "", "answer one question, print the run as JSON and exit")
	source := flag.String("db", "", "database source to ask against (default: database.default)")
	summary := flag.Bool("summary", false, "generate the enhanced insight")
	flag.Parse()

	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, path, err := loadConfig(*configFile)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	utils.SetLogLevel(cfg.LogLevel())
	logger.Debug("Config loaded", "path", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if *question != "" {
		req := cliRequest(flag.CommandLine, *question, *source, *summary)
		if err := app.askOnce(ctx, req, os.Stdout); err != nil {
			logger.Error("Question failed", "error", err)
			os.Exit(1)
		}
		return
	}

	server := NewServer(cfg.Host(), cfg.Port(), app.analyst, app.history)
	if err := server.Start(ctx); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// cliRequest builds the one-shot request. -summary overrides the configured
// default only when it was given, so -summary=false can turn it off.
func cliRequest(fs *flag.FlagSet, question, source string, summary bool) service.AskRequest {
	req := service.AskRequest{Question: question, Database: source}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "summary" {
			req.GenerateSummary = &summary
		}
	})
	return req
}

func loadConfig(file string) (*config.AppConfig, string, error) {
	if file != "" {
		return config.LoadFile(file)
	}
	return config.Load()
}

type app struct {
	analyst   *service.AnalystService
	history   *service.HistoryService
	executors []*database.Executor
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	logger := utils.GetLogger()
	a := &app{}

	sources := make(map[string]*database.Executor)
	for _, src := range cfg.Sources() {
		dialect, err := database.ParseDialect(src.Dialect)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		executor, err := database.Open(ctx, database.Options{
			Name:         src.Name,
			Dialect:      dialect,
			DSN:          src.DSN,
			MaxRows:      cfg.MaxRows(),
			QueryTimeout: cfg.QueryTimeout(),
		})
		if err != nil {
			logger.Warn("Database source unavailable", "source", src.Name, "dsn", utils.MaskDSN(src.DSN), "error", err)
			continue
		}
		sources[src.Name] = executor
		a.executors = append(a.executors, executor)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no database source could be opened")
	}

	modelService := service.NewModelService()
	chatModel, err := modelService.CreateChatModel(ctx, &models.ModelConfig{
		Provider: cfg.ModelProvider(),
		Model:    cfg.ModelName(),
		BaseUrl:  cfg.ModelBaseURL(),
		ApiKey:   cfg.ModelAPIKey(),
		Extra:    map[string]interface{}{"region": cfg.ModelRegion()},
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	gdb, err := db.Open(cfg.HistoryPath())
	if err != nil {
		a.Close()
		return nil, err
	}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB)
	}
	a.history = service.NewHistoryService(gdb)

	var cache service.ResultCache = service.NewMemoryResultCache(cfg.CacheTTL())
	if addr := cfg.RedisAddr(); addr != "" {
		redisCache, err := service.DialRedisResultCache(ctx, addr, cfg.RedisPassword(), cfg.RedisDB(), cfg.CacheTTL())
		if err != nil {
			logger.Warn("Redis unavailable, caching results in memory", "addr", addr, "error", err)
		} else {
			cache = redisCache
			a.closers = append(a.closers, redisCache)
		}
	}

	var examples *service.ExampleMemory
	embed, err := modelService.CreateEmbeddingFunc(ctx, &models.ModelConfig{
		Provider: cfg.EmbeddingProvider(),
		Model:    cfg.EmbeddingModel(),
		BaseUrl:  cfg.EmbeddingBaseURL(),
		ApiKey:   cfg.EmbeddingAPIKey(),
	})
	if err != nil {
		logger.Warn("Example memory disabled", "error", err)
	} else if embed != nil {
		examples, err = service.NewExampleMemory(cfg.EmbeddingPath(), embed)
		if err != nil {
			logger.Warn("Example memory disabled", "error", err)
		}
	}

	a.analyst, err = service.NewAnalystService(service.AnalystOptions{
		Model:         chatModel,
		Sources:       sources,
		DefaultSource: defaultSource(cfg, sources),
		Settings: agent.Settings{
			RecursionLimit:  cfg.RecursionLimit(),
			GenerateSummary: cfg.GenerateSummary(),
			MaxSQLRetries:   cfg.MaxSQLRetries(),
			MaxChartRetries: cfg.MaxChartRetries(),
			DeriveChart:     cfg.DeriveChart(),
			TopK:            cfg.TopK(),
			PreviewRows:     cfg.PreviewRows(),
		},
		History:  a.history,
		Cache:    cache,
		Examples: examples,
		Emitter:  event.NewEmitter(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// defaultSource keeps the configured default when it could be opened.
func defaultSource(cfg *config.AppConfig, sources map[string]*database.Executor) string {
	if _, ok := sources[cfg.DefaultSource()]; ok {
		return cfg.DefaultSource()
	}
	return ""
}

func (a *app) askOnce(ctx context.Context, req service.AskRequest, out io.Writer) error {
	run, err := a.analyst.Ask(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return err
	}
	if !run.Succeeded() {
		return fmt.Errorf("run ended with %s: %s", run.Termination, run.Message)
	}
	return nil
}

func (a *app) Close() {
	for _, e := range a.executors {
		_ = e.Close()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}
