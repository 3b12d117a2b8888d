package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	oplog "github.com/mantlenetworkio/plasma/plasma-service/log"
	opmetrics "github.com/mantlenetworkio/plasma/plasma-service/metrics"
	"github.com/mantlenetworkio/plasma/plasma-testlang/config"
	"github.com/mantlenetworkio/plasma/plasma-testlang/flags"
	"github.com/mantlenetworkio/plasma/plasma-testlang/metrics"
	"github.com/mantlenetworkio/plasma/plasma-testlang/scenarios"
	"github.com/mantlenetworkio/plasma/plasma-testlang/testlang"
)

var (
	GitCommit = ""
	GitDate   = ""
	Version   = "v0.1.0"
)

var ErrScenariosFailed = errors.New("scenarios failed")

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "plasma-testlang"
	app.Usage = "Plasma exit protocol testing language"
	app.Description = "Drives deposits, child blocks and exit games against a simulated or deployed root chain"
	app.Flags = flags.Flags
	app.Commands = []*cli.Command{
		{
			Name:   "list",
			Usage:  "List the available scenarios",
			Action: listScenarios,
		},
		{
			Name:      "run",
			Usage:     "Run scenarios, all of them when none are named",
			ArgsUsage: "[scenario...]",
			Action:    runScenarios,
		},
	}
	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoWrapText(false)
	return table
}

func listScenarios(cliCtx *cli.Context) error {
	table := newTable(oplog.AppOut(cliCtx), "Scenario", "Description")
	for _, s := range scenarios.All() {
		table.Append([]string{s.Name, s.Description})
	}
	table.Render()
	return nil
}

func runScenarios(cliCtx *cli.Context) error {
	cfg, err := flags.NewConfigFromCLI(cliCtx)
	if err != nil {
		return err
	}
	list, err := scenarios.Select(cliCtx.Args().Slice())
	if err != nil {
		return err
	}
	logger := oplog.NewLogger(os.Stderr, cfg.LogConfig)

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics("default")
	if cfg.MetricsConfig.Enabled {
		srv, err := opmetrics.StartServer(m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info("Started metrics server", "endpoint", srv.HTTPEndpoint())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Error("Failed to stop metrics server", "err", err)
			}
		}()
	}
	m.RecordInfo(Version)
	m.RecordUp()

	factory, err := newFactory(ctx, logger, cfg, m)
	if err != nil {
		return err
	}
	results := scenarios.Run(ctx, logger, m, factory, list)

	table := newTable(oplog.AppOut(cliCtx), "Scenario", "Result", "Duration", "Error")
	for _, r := range results {
		status, msg := "PASS", ""
		if !r.Passed {
			status = "FAIL"
			if r.Err != nil {
				msg = r.Err.Error()
			}
		}
		table.Append([]string{r.Name, status, r.Duration.Round(time.Millisecond).String(), msg})
	}
	table.Render()

	if n := scenarios.Failed(results); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, n, len(results))
	}
	return nil
}

// newFactory gives every scenario a fresh simulated root chain. A deployed root chain is
// shared, so the rpc backend connects once and hands out the same testing language.
func newFactory(ctx context.Context, logger log.Logger, cfg *config.Config, m metrics.Metricer) (scenarios.Factory, error) {
	if cfg.Backend == config.BackendSim {
		return func(ctx context.Context) (*testlang.TestingLanguage, error) {
			return testlang.NewFromConfig(ctx, logger, cfg, m)
		}, nil
	}
	tl, err := testlang.NewFromConfig(ctx, logger, cfg, m)
	if err != nil {
		return nil, err
	}
	return func(context.Context) (*testlang.TestingLanguage, error) {
		return tl, nil
	}, nil
}
