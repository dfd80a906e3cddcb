package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/slipstream/params"
	"github.com/uhyunpark/slipstream/pkg/api"
	"github.com/uhyunpark/slipstream/pkg/node"
	"github.com/uhyunpark/slipstream/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	n, err := node.New(cfg, sugar)
	if err != nil {
		sugar.Fatalw("node_init_failed", "err", err)
	}
	defer n.Close()

	sugar.Infow("node_starting",
		"data_dir", cfg.Node.DataDir,
		"domain", cfg.Domain.Name,
		"chain_id", cfg.Domain.ChainID,
		"domain_separator", n.DomainSeparator().Hex(),
		"max_orders_per_bundle", cfg.Engine.MaxOrdersPerBundle,
	)

	server := api.NewServer(n, sugar)
	go func() {
		if err := server.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	sugar.Info("node_shutting_down")
}
