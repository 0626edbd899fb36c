// Command lorekeeperd runs lorekeeper's MCP tool server over stdio.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dndtools/lorekeeper/config"
	"github.com/dndtools/lorekeeper/embedding"
	"github.com/dndtools/lorekeeper/logging"
	"github.com/dndtools/lorekeeper/mcptools"
	"github.com/dndtools/lorekeeper/repository"
	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	embedder := embedding.NewHugotService(cfg.EmbeddingModel, cfg.EmbeddingDim)
	defer embedder.Close()

	cache, err := store.NewCache(cfg, embedder)
	if err != nil {
		log.Error("open cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer cache.Close()

	client := upstream.NewHTTPClient(cfg.UpstreamURL)
	repos := repository.NewFactory(cache, client, log)

	server := mcptools.NewServer(repos, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("lorekeeper starting", slog.String("backend", string(cfg.CacheBackend)), slog.String("db_path", cfg.DBPath))
	if err := server.Run(ctx); err != nil {
		log.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
