package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mktetts/sei-solar-depin/internal/config"
	"github.com/mktetts/sei-solar-depin/internal/db"
	"github.com/mktetts/sei-solar-depin/internal/dispatcher"
	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/wallet"
	"github.com/mktetts/sei-solar-depin/internal/httpapi"
	"github.com/mktetts/sei-solar-depin/internal/journal"
	"github.com/mktetts/sei-solar-depin/internal/logger"
	"github.com/mktetts/sei-solar-depin/internal/node"
	"github.com/mktetts/sei-solar-depin/internal/repo"
)

func main() {
	cfg := config.Load()
	log := logger.New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var store journal.Store
	if cfg.DatabaseURL != "" {
		d, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("database connect failed")
		}
		defer d.Close()

		jr := repo.NewJournalRepo(d.Pool)
		if err := jr.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("journal schema failed")
		}
		store = jr
	} else {
		log.Warn("no database configured, journal is ephemeral")
		store = journal.NewMemoryStore()
	}

	n, err := node.New(node.Options{
		Operator:      engine.Address(cfg.Operator),
		EstimatedCost: cfg.EstimatedCost,
		Costs:         wallet.DefaultCosts(),
		Store:         store,
	})
	if err != nil {
		log.WithError(err).Fatal("node init failed")
	}
	if err := n.Replay(ctx); err != nil {
		log.WithError(err).Fatal("journal replay failed")
	}
	log.WithField("seq", n.Seq()).Info("state rebuilt from journal")

	device := dispatcher.New(cfg.DeviceTimeout, log)
	srv := httpapi.NewServer(cfg, n, device, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("solard listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = httpServer.Shutdown(ctx2)
	log.Info("solard shutdown complete")
}
