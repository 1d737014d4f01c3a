// mtwatch connects to the MetaApi websocket gateway, mirrors a MetaTrader
// account locally and streams terminal events to console.
// Usage: go run ./cmd/mtwatch --config configs/mtwatch.local.yaml
//
// Required environment variables:
//
//	METAAPI_TOKEN - Your MetaApi auth token
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agiliumtrade/metaapi-go/internal/config"
	"github.com/agiliumtrade/metaapi-go/internal/gateway"
	"github.com/agiliumtrade/metaapi-go/internal/model"
	"github.com/agiliumtrade/metaapi-go/internal/terminal"
	"github.com/agiliumtrade/metaapi-go/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/mtwatch.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("mtwatch", version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client, err := gateway.NewClient(cfg.API.Token, gatewayOptions(cfg), logger)
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		os.Exit(1)
	}

	stateOpts := terminal.DefaultStateOptions()
	if cfg.State.UpdatePositionProfits != nil {
		stateOpts.UpdatePositionProfits = *cfg.State.UpdatePositionProfits
	}
	conn := terminal.NewConnection(client, cfg.Account.ID, stateOpts, logger)
	client.AddSynchronizationListener(cfg.Account.ID, &consolePrinter{logger: logger})

	logger.Info("connecting to the MetaApi gateway", "domain", cfg.API.Domain)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	if err := conn.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe account", "error", err)
		client.Close()
		os.Exit(1)
	}
	if err := conn.Synchronize(ctx); err != nil {
		logger.Error("failed to start synchronization", "error", err)
		client.Close()
		os.Exit(1)
	}

	logger.Info("waiting for terminal synchronization...")
	if err := conn.WaitSynchronized(ctx, "", 0); err != nil {
		logger.Error("synchronization did not complete", "error", err)
		client.Close()
		os.Exit(1)
	}
	logger.Info("terminal synchronized")

	for _, symbol := range cfg.Account.Symbols {
		if err := conn.SubscribeToMarketData(ctx, symbol); err != nil {
			logger.Warn("failed to subscribe to market data", "symbol", symbol, "error", err)
			continue
		}
		logger.Info("subscribed to market data", "symbol", symbol)
	}

	// Replica snapshot printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := conn.State()
				info, ok := state.AccountInformation()
				if !ok {
					continue
				}
				logger.Info("replica snapshot",
					"balance", info.Balance,
					"equity", info.Equity,
					"margin", info.Margin,
					"positions", len(state.Positions()),
					"orders", len(state.Orders()),
					"connected", state.Connected(),
					"broker_connected", state.ConnectedToBroker(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info("shutting down...")
	conn.Close()
	client.Close()
	logger.Info("shutdown complete")
}

// gatewayOptions maps the file config onto gateway options.
func gatewayOptions(cfg *config.WatcherConfig) gateway.Options {
	opts := gateway.DefaultOptions()
	opts.Application = cfg.API.Application
	opts.Domain = cfg.API.Domain
	opts.RequestTimeout = cfg.API.RequestTimeout
	opts.ConnectTimeout = cfg.API.ConnectTimeout
	opts.PacketOrderingTimeout = cfg.API.PacketOrderingTimeout

	logOpts := opts.PacketLogger
	logOpts.Enabled = cfg.PacketLog.Enabled
	if cfg.PacketLog.Root != "" {
		logOpts.Root = cfg.PacketLog.Root
	}
	if cfg.PacketLog.FileNumberLimit != 0 {
		logOpts.FileNumberLimit = cfg.PacketLog.FileNumberLimit
	}
	if cfg.PacketLog.LogFileSizeInHours != 0 {
		logOpts.LogFileSizeInHours = cfg.PacketLog.LogFileSizeInHours
	}
	if cfg.PacketLog.CompressPrices != nil {
		logOpts.CompressPrices = *cfg.PacketLog.CompressPrices
	}
	if cfg.PacketLog.CompressSpecifications != nil {
		logOpts.CompressSpecifications = *cfg.PacketLog.CompressSpecifications
	}
	if cfg.PacketLog.FlushInterval != 0 {
		logOpts.FlushInterval = cfg.PacketLog.FlushInterval
	}
	opts.PacketLogger = logOpts
	return opts
}

// consolePrinter logs terminal events as they stream in.
type consolePrinter struct {
	gateway.NoopSynchronizationListener
	logger *slog.Logger
}

func (p *consolePrinter) OnConnected() error {
	p.logger.Info("account authenticated")
	return nil
}

func (p *consolePrinter) OnDisconnected() error {
	p.logger.Warn("account session dropped")
	return nil
}

func (p *consolePrinter) OnBrokerConnectionStatusChanged(connected bool) error {
	p.logger.Info("broker connection status changed", "connected", connected)
	return nil
}

func (p *consolePrinter) OnPositionUpdated(position model.Position) error {
	p.logger.Info("position updated",
		"id", position.ID,
		"symbol", position.Symbol,
		"type", position.Type,
		"volume", position.Volume,
		"profit", position.Profit,
	)
	return nil
}

func (p *consolePrinter) OnPositionRemoved(positionID string) error {
	p.logger.Info("position removed", "id", positionID)
	return nil
}

func (p *consolePrinter) OnOrderUpdated(order model.Order) error {
	p.logger.Info("order updated",
		"id", order.ID,
		"symbol", order.Symbol,
		"type", order.Type,
		"state", order.State,
	)
	return nil
}

func (p *consolePrinter) OnOrderCompleted(orderID string) error {
	p.logger.Info("order completed", "id", orderID)
	return nil
}

func (p *consolePrinter) OnDealAdded(deal model.Deal) error {
	p.logger.Info("deal added",
		"id", deal.ID,
		"type", deal.Type,
		"symbol", deal.Symbol,
		"profit", deal.Profit,
	)
	return nil
}

func (p *consolePrinter) OnSymbolPriceUpdated(price model.SymbolPrice) error {
	p.logger.Debug("price tick",
		"symbol", price.Symbol,
		"bid", price.Bid,
		"ask", price.Ask,
	)
	return nil
}
