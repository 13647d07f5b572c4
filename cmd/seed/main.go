// Seed loads demo stations and user deposits from a YAML fixture file and
// applies them through the node, so seeded state goes through the same
// journal as live traffic.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mktetts/sei-solar-depin/internal/config"
	"github.com/mktetts/sei-solar-depin/internal/db"
	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/engine/wallet"
	"github.com/mktetts/sei-solar-depin/internal/logger"
	"github.com/mktetts/sei-solar-depin/internal/node"
	"github.com/mktetts/sei-solar-depin/internal/repo"
)

type fixture struct {
	Stations []struct {
		Owner         string `yaml:"owner"`
		UniqueID      string `yaml:"uniqueId"`
		DeviceAddress string `yaml:"deviceAddress"`
		PricePerUnit  uint64 `yaml:"pricePerUnit"`
		Capacity      uint64 `yaml:"capacity"`
		Address       string `yaml:"address"`
		LatMicro      int64  `yaml:"latMicro"`
		LonMicro      int64  `yaml:"lonMicro"`
	} `yaml:"stations"`
	Deposits []struct {
		User   string `yaml:"user"`
		Amount uint64 `yaml:"amount"`
	} `yaml:"deposits"`
}

func main() {
	file := flag.String("file", "seed.yaml", "fixture file")
	flag.Parse()

	cfg := config.Load()
	log := logger.New()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.WithError(err).Fatal("read fixture")
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		log.WithError(err).Fatal("parse fixture")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connect failed")
	}
	defer d.Close()

	jr := repo.NewJournalRepo(d.Pool)
	if err := jr.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("journal schema failed")
	}

	n, err := node.New(node.Options{
		Operator:      engine.Address(cfg.Operator),
		EstimatedCost: cfg.EstimatedCost,
		Costs:         wallet.DefaultCosts(),
		Store:         jr,
	})
	if err != nil {
		log.WithError(err).Fatal("node init failed")
	}
	if err := n.Replay(ctx); err != nil {
		log.WithError(err).Fatal("journal replay failed")
	}

	for _, st := range fx.Stations {
		id, err := n.RegisterStation(ctx, engine.Address(st.Owner), st.UniqueID, st.DeviceAddress,
			st.PricePerUnit, st.Capacity, st.Address, st.LatMicro, st.LonMicro)
		if err != nil {
			log.WithError(err).WithField("uniqueId", st.UniqueID).Fatal("register station")
		}
		log.WithField("stationId", id).WithField("uniqueId", st.UniqueID).Info("seeded station")
	}

	for _, dep := range fx.Deposits {
		if err := n.Deposit(ctx, engine.Address(dep.User), dep.Amount); err != nil {
			log.WithError(err).WithField("user", dep.User).Fatal("deposit")
		}
		log.WithField("user", dep.User).WithField("amount", dep.Amount).Info("seeded deposit")
	}

	log.WithField("seq", n.Seq()).Info("seed complete")
}
