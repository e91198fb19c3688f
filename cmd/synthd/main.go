package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/elys-network/synthcore/internal/config"
	"github.com/elys-network/synthcore/internal/engine"
	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/pricefeed"
	"github.com/elys-network/synthcore/internal/state"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// main is the entry point for the synthcore daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Synthcore Protocol Engine Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Risk Parameters
	riskParams, _, err := state.LoadActiveRiskParameters(config.RiskConfigName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active risk parameters, using defaults and saving.")
		defaultParams := config.DefaultRiskParameters
		if _, err := state.SaveRiskParameters(defaultParams, config.RiskConfigName, config.DefaultRiskConfigVersion, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default risk parameters.")
		}
		riskParams = &defaultParams
	}
	log.Info().Msg("Risk parameters loaded successfully.")

	// --- 2. Engine Bootstrap ---
	spec := config.DefaultLedgerSpec()
	spec.Params = *riskParams

	eng, err := engine.Bootstrap(spec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap protocol engine")
	}
	log.Info().
		Int("synthetics", len(spec.Synthetics)+1).
		Int("collateral", len(spec.Collateral)).
		Msg("Protocol engine bootstrapped")

	// --- 3. Price Feed ---
	grpcEndpoint := config.NodeGRPC
	var creds grpc.DialOption
	if strings.Contains(grpcEndpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	grpcClient, err := grpc.Dial(grpcEndpoint, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("gRPC connection error")
	}
	defer grpcClient.Close()
	log.Info().Str("endpoint", grpcEndpoint).Msg("gRPC connected")

	feed, err := pricefeed.New(grpcClient, eng.Oracle(), feedTargets())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create price feed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refreshInterval := time.Duration(config.PriceRefreshSeconds) * time.Second
	go feed.RunLoop(ctx, refreshInterval)
	log.Info().Str("interval", refreshInterval.String()).Msg("Price feed loop started")

	// --- 4. Web Server ---
	webServer := web.NewWebServer(eng, strconv.Itoa(config.WebPort))
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping.")
}

// feedTargets builds the oracle refresh map: every collateral denom and every
// synthetic anchor, keyed to the feed symbol the chain publishes it under.
// Denoms without a registry entry fall back to the upper-cased symbol.
func feedTargets() map[types.AssetID]string {
	targets := make(map[types.AssetID]string)

	for _, asset := range config.SupportedCollateral {
		if symbol, ok := config.DenomToFeedSymbol[asset.Denom]; ok {
			targets[asset.Denom] = symbol
		} else {
			targets[asset.Denom] = strings.ToUpper(asset.Symbol)
		}
	}

	// The stable anchor is pegged at 1.0 inside the oracle and never fed.
	for _, synth := range config.Synthetics {
		if _, ok := targets[synth.AnchorDenom]; ok {
			continue
		}
		if symbol, ok := config.DenomToFeedSymbol[synth.AnchorDenom]; ok {
			targets[synth.AnchorDenom] = symbol
		} else {
			targets[synth.AnchorDenom] = strings.ToUpper(synth.AnchorDenom.String())
		}
	}

	return targets
}
