// Command finsync drives the offline-first data layer from the shell:
// reconciling the cache, inspecting pending rows and computing balances,
// period usage and totals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"finsync/internal/amqp"
	"finsync/internal/backend"
	"finsync/internal/balance"
	"finsync/internal/cli"
	"finsync/internal/coordinator"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/recurring"
)

const usageText = `usage: finsync <command> [flags]

commands:
  reconcile -owner N                       replace the owner's cache with the remote state
  pending                                  count rows still waiting for the remote
  add -owner N -amount A -category C ...   record a transaction
  delete -id N                             delete a transaction
  balance -owner N [-save]                 signed total of the owner's transactions
  usage -owner N -category C -period P     spending of a category in the current period
  limits -owner N                          evaluate the owner's spending limits
  totals -owner N -by month|year [-local]  income and expense per period
  watch -owner N                           print the owner's transactions as they change
  recur -owner N [-since D]                record transactions owed by recurring payments
  upcoming -owner N                        next due date of each recurring payment
`

// app bundles what the commands need.
type app struct {
	set       *coordinator.Set
	calc      *balance.Calculator
	recurring *recurring.Processor
	logger    *log.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg, logger := cli.LoadAndValidateConfig(log.ComponentCLI)
	defer logger.Sync()

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	opts := []backend.Option{}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(amqp.Config{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,
		}, logger.WithComponent(log.ComponentAMQP).Logger)
		if err != nil {
			logger.Warn("AMQP unavailable, events will not be published", "error", err)
		} else {
			defer publisher.Close()
			opts = append(opts, backend.WithPublisher(publisher))
		}
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	coordLogger := logger.WithComponent(log.ComponentCoordinator)
	res, err := backend.NewFactory(coordLogger.Logger, opts...).Build(bcfg)
	if err != nil {
		cli.Fatal(logger, "Failed to build data layer", err)
	}
	defer res.Cleanup()

	a := &app{
		set:       res.Set,
		calc:      balance.NewCalculator(res.Set.Profiles, coordLogger.Logger),
		recurring: recurring.NewProcessor(res.Set.RecurringPayments, res.Set.Transactions, coordLogger.Logger),
		logger:    logger,
	}
	if err := a.run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		cli.Fatal(logger, "Command failed", err)
	}
}

func (a *app) run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usageText)
		return flag.ErrHelp
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "reconcile":
		return a.reconcile(ctx, rest, out)
	case "pending":
		return a.pending(ctx, out)
	case "add":
		return a.add(ctx, rest, out)
	case "delete":
		return a.delete(ctx, rest, out)
	case "balance":
		return a.balance(ctx, rest, out)
	case "usage":
		return a.usage(ctx, rest, out)
	case "limits":
		return a.limits(ctx, rest, out)
	case "totals":
		return a.totals(ctx, rest, out)
	case "watch":
		return a.watch(ctx, rest, out)
	case "recur":
		return a.recur(ctx, rest, out)
	case "upcoming":
		return a.upcoming(ctx, rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usageText)
		return nil
	default:
		fmt.Fprint(out, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// transactions reads the owner's transactions, falling back to the cache
// when the remote cannot be reached.
func (a *app) transactions(ctx context.Context, ownerID int64) ([]core.Transaction, error) {
	txs, ok, err := coordinator.Settle(a.set.Transactions.Read(ctx, ownerID))
	if err != nil {
		if !ok {
			return nil, err
		}
		a.logger.WarnContext(ctx, "Remote refresh failed, using cached transactions", "error", err)
	}
	return txs, nil
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func requireOwner(owner int64) error {
	if owner <= 0 {
		return fmt.Errorf("-owner is required: %w", core.ErrMissingOwner)
	}
	return nil
}

