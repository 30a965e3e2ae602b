package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"homecontrol-bridge/pkg/auth"
	"homecontrol-bridge/pkg/config"
	"homecontrol-bridge/pkg/homecontrol"
	"homecontrol-bridge/pkg/logger"
	"homecontrol-bridge/pkg/metrics"
	"homecontrol-bridge/pkg/poller"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	log.Info("homecontrol-bridge starting", "config", cfg.String())

	// Create context with graceful shutdown support
	ctx := SetupGracefulShutdown(log)

	registry := prometheus.NewRegistry()
	bm, err := metrics.NewBridgeMetrics(registry)
	if err != nil {
		log.Error("failed to create bridge metrics", "error", err.Error())
		os.Exit(1)
	}
	descs, err := metrics.NewMetricDescriptors(registry)
	if err != nil {
		log.Error("failed to create metric descriptors", "error", err.Error())
		os.Exit(1)
	}

	controller := buildController(cfg, bm, log)

	// One-shot command harness: execute and exit, no server or polling.
	if cfg.Device != "" {
		if err := runCommand(ctx, controller, cfg.Device, cfg.Command); err != nil {
			log.Error("command failed", "device", cfg.Device, "command", cfg.Command, "error", err.Error())
			os.Exit(1)
		}
		return
	}

	interval := time.Duration(cfg.PollInterval) * time.Second
	statusPoller := poller.New(controller, interval, descs, bm, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return statusPoller.Run(gctx)
	})
	g.Go(func() error {
		return StartServer(gctx, cfg, registry, log)
	})

	if err := g.Wait(); err != nil {
		log.Error("bridge stopped", "error", err.Error())
		os.Exit(1)
	}
	log.Info("bridge stopped")
}

// buildController wires the authentication core to the device API client.
func buildController(cfg *config.Config, bm *metrics.BridgeMetrics, log *logger.Logger) *homecontrol.Controller {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	endpoints := auth.DefaultEndpoints()

	choreography := auth.NewChoreography(endpoints, timeout, log)
	exchanger := auth.NewExchanger(endpoints, timeout)
	creds := auth.Credentials{Email: cfg.Email, Password: cfg.Password}
	cache := auth.NewTokenCache(creds, choreography, exchanger, bm, log)

	if cfg.AccessToken != "" {
		cache.SetTokens(cfg.AccessToken, "", time.Duration(cfg.AccessTokenTTL)*time.Second)
		log.Info("using supplied access token", "ttl_seconds", cfg.AccessTokenTTL)
	}

	client := homecontrol.NewClient(homecontrol.DefaultBaseURL, cache, timeout, log)
	api := homecontrol.NewAPIWithCircuitBreaker(client, homecontrol.DefaultCircuitBreakerConfig())

	return homecontrol.NewController(api, cfg.DeviceAllowList(), log)
}

// runCommand executes a single device command for the -device/-command
// harness and prints the outcome to stdout.
func runCommand(ctx context.Context, controller *homecontrol.Controller, moduleID, command string) error {
	switch {
	case command == "on":
		if err := controller.TurnOn(ctx, moduleID); err != nil {
			return err
		}
		fmt.Printf("module %s: on\n", moduleID)

	case command == "off":
		if err := controller.TurnOff(ctx, moduleID); err != nil {
			return err
		}
		fmt.Printf("module %s: off\n", moduleID)

	case command == "status":
		status, err := controller.GetStatus(ctx, moduleID)
		if err != nil {
			return err
		}
		if status.Brightness != nil {
			fmt.Printf("module %s: on=%t brightness=%d\n", moduleID, status.On, *status.Brightness)
		} else {
			fmt.Printf("module %s: on=%t\n", moduleID, status.On)
		}

	case strings.HasPrefix(command, "brightness="):
		level, err := strconv.Atoi(strings.TrimPrefix(command, "brightness="))
		if err != nil {
			return fmt.Errorf("invalid brightness value in %q: %w", command, err)
		}
		if err := controller.SetBrightness(ctx, moduleID, level); err != nil {
			return err
		}
		fmt.Printf("module %s: brightness set\n", moduleID)

	default:
		return fmt.Errorf("unknown command %q (want on, off, status or brightness=N)", command)
	}
	return nil
}
