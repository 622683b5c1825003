package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"casa-relay/lib/logger"
	"casa-relay/modules/aggregate"
	"casa-relay/modules/api"
	"casa-relay/modules/chains"
	"casa-relay/modules/fees"
	"casa-relay/modules/gateway"
	"casa-relay/modules/monitor"
	"casa-relay/modules/operator"
	"casa-relay/modules/relay"
)

func main() {
	args, err := ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error is", err)
		os.Exit(1)
	}

	env, err := chains.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error is", err)
		os.Exit(1)
	}
	logger.Setup(os.Stderr, env.LogLevel)

	relayConf := chains.NewRelayConfig(args.dataDir)
	if err := relayConf.Init(); err != nil {
		fail("loading config", err)
	}
	if args.isInit {
		fmt.Println("config written to", relayConf.FilePath())
		return
	}

	if args.addr != "" {
		env.HttpAddr = args.addr
	}
	if err := relayConf.ApplyEnv(env); err != nil {
		fail("applying environment", err)
	}

	registry, err := relayConf.Registry()
	if err != nil {
		fail("chain config", err)
	}
	account, err := operator.NewAccount(env.OperatorPk)
	if err != nil {
		fail("OPERATOR_PK", err)
	}

	gateways := gateway.NewSet(registry, relayConf.ReceiptPollInterval(), logger.Module("gateway"))
	serializer := operator.NewSerializer(account, logger.Module("operator"))
	serializer.SetLeadWindow(relayConf.NonceLeadWindow())
	pipeline := relay.New(gateways, serializer, logger.Module("relay"))
	collector := fees.New(pipeline, gateways, relayConf.ConfirmationTimeout(), logger.Module("fees"))

	balances, err := monitor.New(
		gateways,
		account.Address(),
		relayConf.BalanceCheckSchedule(),
		relayConf.LowBalanceWei(),
		logger.Module("monitor"),
	)
	if err != nil {
		fail("balance monitor", err)
	}

	server := api.New(pipeline, collector.Metrics(), relayConf.GetHttpAddr(), logger.Module("api"))

	plugins := make([]aggregate.Plugin, 0)

	plugins = append(plugins,
		gateways,
		collector,
		balances,
		server,
	)

	a := aggregate.New(
		plugins,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		a.Interrupt()
	}()

	slog.Info("starting relay",
		"operator", account.Address().Hex(),
		"chains", fmt.Sprint(registry.IDs()),
		"fee_targets", len(registry.FeeTargets()),
		"config", relayConf.FilePath(),
	)

	if err := a.Run(); err != nil {
		fail("relay stopped", err)
	}
}

func fail(what string, err error) {
	slog.Error(what, "err", err)
	os.Exit(1)
}
