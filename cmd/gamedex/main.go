package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gamedex/gamedex/agent"
	"github.com/gamedex/gamedex/cron"
	"github.com/gamedex/gamedex/gateway"
	"github.com/gamedex/gamedex/pkg/config"
	"github.com/gamedex/gamedex/pkg/kv"
	"github.com/gamedex/gamedex/pkg/llm/factory"
	"github.com/gamedex/gamedex/resolver"
	"github.com/gamedex/gamedex/storage"
	"github.com/gamedex/gamedex/tools"
	"github.com/gamedex/gamedex/wiki"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	envPath := flag.String("env", config.DefaultEnvFilePath(), "path to KEY=VALUE env file")
	rateLimit := flag.Bool("rate-limit", false, "enable per-endpoint rate limiting")
	flag.Parse()

	log.Println("Starting gamedex...")

	// File-based secrets (API keys) before config so env overrides see them
	if n := config.ApplyEnvFile(*envPath); n > 0 {
		log.Printf("[Config] Applied %d vars from %s", n, *envPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.KVDir, filepath.Dir(cfg.CronJobsPath)} {
		if dir != "" && dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	// Storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	// Summary cache on badger, optional
	var cache resolver.SummaryCache
	if cfg.Cache.Enabled {
		kvStore, err := kv.Open(kv.Options{
			Dir:           cfg.KVDir,
			Compression:   true,
			ValueLogMaxMB: cfg.Cache.MaxSizeMB,
		})
		if err != nil {
			log.Printf("[WARN] cache disabled, badger open failed: %v", err)
		} else {
			defer kvStore.Close()
			cache = kv.NewSummaryCache(kvStore, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
		}
	}

	// Wiki pipeline
	wikiClient := wiki.New(*cfg.Wiki)
	res := resolver.New(wikiClient, cache)

	// LLM provider
	ctx := context.Background()
	if err := factory.InitProviders(ctx); err != nil {
		log.Fatalf("llm providers: %v", err)
	}
	provider, err := factory.GetProviderOrDefault(cfg.Agent.Provider)
	if err != nil {
		log.Fatalf("llm provider: %v (set OPENAI_API_KEY or GOOGLE_API_KEY)", err)
	}
	log.Printf("[OK] Using provider: %s", provider.Name())

	// Tools
	registry := tools.NewRegistry()
	tools.RegisterGameTools(registry, res, store)

	cronHandler := cron.NewCronHandler(cfg.CronJobsPath)
	tools.RegisterScheduleTools(registry, cronHandler)

	// Agent
	opts := agent.DefaultOptions()
	opts.Model = cfg.Agent.Model
	if cfg.Agent.SystemPrompt != "" {
		opts.SystemPrompt = cfg.Agent.SystemPrompt
	}
	if cfg.Agent.MaxToolRounds > 0 {
		opts.MaxToolRounds = cfg.Agent.MaxToolRounds
	}
	a := agent.New(provider, registry, store, opts)

	// Scheduled agent turns run against a dedicated session; reminders and
	// job output land in the same transcript so clients can poll it
	cronHandler.SetAgentTurnCallback(func(message, model string) (string, error) {
		turnCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return a.ChatWithSession(turnCtx, "cron", message)
	})
	cronHandler.SetAnnounceCallback(func(text string) error {
		log.Printf("[Cron] %s", text)
		return store.AddMessage("announcements", "assistant", text)
	})
	cronHandler.Start()
	defer cronHandler.Stop()

	// Gateway
	srv := gateway.New(*cfg.Gateway, a, cronHandler)
	if *rateLimit {
		srv.SetRateLimiter(store)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("[ERROR] gateway: %v", err)
		}
	}

	srv.Stop()
}
