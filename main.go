// Command tollkeeper-gateway starts two HTTP front doors: a reverse proxy
// that gates traffic to protected destinations behind the access-control
// engine, and a sidecar API that serves toll payment, the challenge page,
// and its solving helper.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ascendise/tollkeeper-gateway/api"
	"github.com/ascendise/tollkeeper-gateway/config"
	"github.com/ascendise/tollkeeper-gateway/internal/clock"
	"github.com/ascendise/tollkeeper-gateway/internal/engine"
	"github.com/ascendise/tollkeeper-gateway/proxy"
	"github.com/ascendise/tollkeeper-gateway/web"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	clk := clock.System{}
	gates, routes, keys, err := config.LoadGates(cfg.GatesConfigPath, clk, cfg.SecretKey)
	if err != nil {
		slog.Error("failed to load gates config", "path", cfg.GatesConfigPath, "err", err)
		os.Exit(1)
	}

	tollkeeper, err := engine.NewTollkeeper(gates, keys, clk)
	if err != nil {
		slog.Error("failed to build tollkeeper", "err", err)
		os.Exit(1)
	}
	slog.Info("tollkeeper configured", "gates", len(gates), "routes", len(routes))

	router := proxy.NewRouter()
	for _, route := range routes {
		dest, err := proxy.NewDestination(route.InternalURL)
		if err != nil {
			slog.Error("invalid internal_destination", "gate", route.GateID, "url", route.InternalURL, "err", err)
			os.Exit(1)
		}
		router.Register(route.PublicHost, dest)
		slog.Info("registered route", "gate", route.GateID, "public", route.PublicHost, "internal", route.InternalURL)
	}

	gatekeeper := api.NewGatekeeper(tollkeeper, cfg.BaseURL, cfg.RealIPHeader, router)

	challengeTmpl, err := web.ChallengeTemplate()
	if err != nil {
		slog.Error("failed to parse challenge template", "err", err)
		os.Exit(1)
	}
	handlers := api.NewHandlers(tollkeeper, cfg.BaseURL, cfg.RealIPHeader, challengeTmpl)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/pay/", handlers.PayToll)
	apiMux.HandleFunc("/api/challenge", handlers.ChallengePage)
	apiMux.HandleFunc("/api/debug/visa", handlers.DebugVisa)
	apiMux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	proxyAddr := fmt.Sprintf(":%d", cfg.ProxyPort)
	apiAddr := fmt.Sprintf(":%d", cfg.APIPort)

	errs := make(chan error, 2)
	go func() {
		slog.Info("proxy listening", "addr", proxyAddr)
		errs <- fmt.Errorf("proxy server: %w", http.ListenAndServe(proxyAddr, gatekeeper))
	}()
	go func() {
		slog.Info("sidecar api listening", "addr", apiAddr)
		errs <- fmt.Errorf("api server: %w", http.ListenAndServe(apiAddr, apiMux))
	}()

	err = <-errs
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
