package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/xiliaf09/tgbotv4/internal/config"
	"github.com/xiliaf09/tgbotv4/internal/metrics"
	"github.com/xiliaf09/tgbotv4/internal/swap"
	"github.com/xiliaf09/tgbotv4/internal/telegram"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
	"github.com/xiliaf09/tgbotv4/internal/wallet"
	"github.com/xiliaf09/tgbotv4/internal/zerox"
)

func main() {
	// .env is optional; env vars override config.yml either way
	_ = godotenv.Load()

	telemetry.Start()
	defer telemetry.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	if cfg.DEBUG {
		telemetry.EnableDebug(true)
	}

	if cfg.METRICS_ADDR != "" {
		go metrics.Serve(ctx, cfg.METRICS_ADDR)
	}

	w, err := wallet.New(ctx, cfg.RPC_URL, cfg.PRIVATE_KEY)
	if err != nil {
		log.Fatalf("wallet init: %v", err)
	}
	telemetry.Infof("[main] wallet %s on chain %d", w.Address().Hex(), cfg.CHAIN_ID)

	client, err := zerox.NewClient(cfg.ZEROX_API_KEY, cfg.ZEROX_BASE_URL, cfg.CHAIN_ID)
	if err != nil {
		log.Fatalf("swap api client: %v", err)
	}

	orchestrator := swap.New(client, w, common.HexToAddress(cfg.PERMIT2_CONTRACT))

	ctrl, err := telegram.NewController(cfg, orchestrator, client, w)
	if err != nil {
		log.Fatalf("telegram init: %v", err)
	}

	telemetry.Infof("[main] listening for commands")
	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("controller error: %v", err)
	}
}
