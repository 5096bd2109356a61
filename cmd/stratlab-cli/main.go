package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stratlab/internal/config"
	"stratlab/internal/domain"
	"stratlab/internal/engine"
	"stratlab/internal/metrics"
	"stratlab/internal/service"
	"stratlab/internal/strategy/builtins"
	"stratlab/internal/util"
	"stratlab/pkg/stratlab"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stratlab-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run         Run a backtest locally\n")
	fmt.Fprintf(os.Stderr, "  strategies  List registered strategies\n")
	fmt.Fprintf(os.Stderr, "  runs        List runs stored on a stratlab-server\n")
	fmt.Fprintf(os.Stderr, "  trades      Print a stored run's trades\n")
	fmt.Fprintf(os.Stderr, "  explain     Print the decision trace of one trade\n")
	fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("stratlab-cli %s\n", version)
	case "strategies":
		for _, name := range builtins.NewRegistry().List() {
			fmt.Println(name)
		}
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "runs":
		err = runsCmd(ctx, os.Args[2:])
	case "trades":
		err = tradesCmd(ctx, os.Args[2:])
	case "explain":
		err = explainCmd(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// paramFlag collects repeated -param key=value flags.
type paramFlag map[string]any

func (p paramFlag) String() string { return fmt.Sprint(map[string]any(p)) }

func (p paramFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		p[k] = f
	} else {
		p[k] = v
	}
	return nil
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("f", "", "YAML run file")
	strat := fs.String("strategy", "", "strategy name")
	symbols := fs.String("symbols", "", "comma-separated symbols")
	market := fs.String("market", "", "market (us, crypto, ...)")
	interval := fs.String("interval", "", "bar interval")
	start := fs.String("start", "", "start date YYYY-MM-DD")
	end := fs.String("end", "", "end date YYYY-MM-DD (inclusive)")
	provider := fs.String("provider", "", "data provider override (auto, parquet, csv, alpaca, binance)")
	tradesOut := fs.String("trades", "", "write all trades to this CSV file")
	cfgPath := fs.String("config", "", "config file (default $STRATLAB_CONFIG or "+config.DefaultPath+")")
	params := paramFlag{}
	fs.Var(params, "param", "strategy parameter key=value (repeatable)")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *provider != "" {
		cfg.Backtest.Provider = *provider
	}
	logger := util.NewLogger(cfg.Logging.Level, "text")

	var req engine.Request
	if *file != "" {
		if req, err = config.LoadRunRequest(*file); err != nil {
			return err
		}
	}
	overrideString(&req.Strategy, *strat)
	overrideString(&req.Market, *market)
	overrideString(&req.Interval, *interval)
	overrideString(&req.Start, *start)
	overrideString(&req.End, *end)
	if *symbols != "" {
		req.Symbols = strings.Split(*symbols, ",")
	}
	if len(params) > 0 {
		if req.Params == nil {
			req.Params = make(map[string]any, len(params))
		}
		for k, v := range params {
			req.Params[k] = v
		}
	}

	src, err := service.NewProvider(cfg, logger)
	if err != nil {
		return err
	}
	bt := engine.NewBacktester(src, builtins.NewRegistry(), engine.NewEngine(logger, nil),
		cfg.Backtest.RiskConfig, cfg.Backtest.MaxWorkers, logger)

	began := time.Now()
	res, err := bt.Run(ctx, req)
	if err != nil {
		return err
	}
	printResult(res, time.Since(began))

	if *tradesOut != "" {
		var all []domain.Trade
		for _, r := range res.Results {
			all = append(all, r.Trades...)
		}
		f, err := os.Create(*tradesOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := engine.WriteTradesCSV(f, all); err != nil {
			return fmt.Errorf("writing %s: %w", *tradesOut, err)
		}
		fmt.Printf("\nwrote %d trades to %s\n", len(all), *tradesOut)
	}
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// signStyle colors a padded cell by the sign of v.
func signStyle(cell string, v float64) string {
	switch {
	case v > 0:
		return gainStyle.Render(cell)
	case v < 0:
		return lossStyle.Render(cell)
	default:
		return cell
	}
}

func printResult(res *engine.RunResult, elapsed time.Duration) {
	fmt.Println(titleStyle.Render(fmt.Sprintf(" %s  %s %s  %s .. %s ", res.Request.Strategy,
		res.Request.Market, res.Request.Interval, res.Request.Start, res.Request.End)),
		dimStyle.Render(elapsed.Round(time.Millisecond).String()))
	fmt.Println()

	fmt.Println(colHeaderStyle.Render(fmt.Sprintf("%-10s %6s %6s %9s %9s %7s %9s %8s %6s",
		"SYMBOL", "BARS", "TRADES", "RETURN", "CAGR", "SHARPE", "MAXDD", "WINRATE", "PF")))
	for _, r := range res.Results {
		rep := r.Report
		fmt.Println(symbolStyle.Render(fmt.Sprintf("%-10s", rep.Symbol)),
			fmt.Sprintf("%6d %6d", rep.Bars, rep.NumTrades),
			signStyle(fmt.Sprintf("%9s", pct(rep.TotalReturn)), rep.TotalReturn),
			signStyle(fmt.Sprintf("%9s", pct(rep.CAGR)), rep.CAGR),
			fmt.Sprintf("%7s", num(rep.Sharpe)),
			lossStyle.Render(fmt.Sprintf("%9s", pct(rep.MaxDrawdown))),
			fmt.Sprintf("%8s %6s", pct(rep.WinRate), num(rep.ProfitFactor)))
	}
	s := res.Summary
	fmt.Println(symbolStyle.Render(fmt.Sprintf("%-10s", "AVG")),
		fmt.Sprintf("%6s %6d", "", s.NumTrades),
		signStyle(fmt.Sprintf("%9s", pct(s.AvgTotalReturn)), s.AvgTotalReturn),
		signStyle(fmt.Sprintf("%9s", pct(s.AvgCAGR)), s.AvgCAGR),
		fmt.Sprintf("%7s", num(s.AvgSharpe)),
		lossStyle.Render(fmt.Sprintf("%9s", pct(s.AvgMaxDrawdown))),
		fmt.Sprintf("%8s %6s", pct(s.AvgWinRate), num(s.AvgProfitFactor)))

	if len(res.Errors) > 0 {
		fmt.Println()
		fmt.Println(dimStyle.Render("skipped:"))
		syms := make([]string, 0, len(res.Errors))
		for sym := range res.Errors {
			syms = append(syms, sym)
		}
		sort.Strings(syms)
		for _, sym := range syms {
			fmt.Printf("  %s: %s\n", sym, res.Errors[sym])
		}
	}
}

// ---------------------------------------------------------------------------
// Remote commands
// ---------------------------------------------------------------------------

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("STRATLAB_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	return fs.String("server", def, "stratlab-server base URL")
}

func runsCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	server := serverFlag(fs)
	limit := fs.Int("limit", 20, "maximum runs to list")
	fs.Parse(args)

	runs, err := stratlab.NewClient(*server).ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTRATEGY\tMARKET\tINTERVAL\tSYMBOLS\tTRADES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n", r.ID, r.CreatedAt.Format(time.DateTime),
			r.Strategy, r.Market, r.Interval, strings.Join(r.Symbols, ","), r.Summary["num_trades"])
	}
	return tw.Flush()
}

func tradesCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trades", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stratlab-cli trades [-server URL] RUN_ID")
	}

	trades, err := stratlab.NewClient(*server).Trades(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tTIME\tSIDE\tQTY\tPRICE\tFEE\tPNL")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\t%.4f\t%.4f\t%.2f\n", t.ID, t.Symbol,
			t.Timestamp.Format(time.DateTime), t.Side, t.Qty, t.Price, t.Fee, t.PnL)
	}
	return tw.Flush()
}

func explainCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: stratlab-cli explain [-server URL] RUN_ID TRADE_ID")
	}
	tradeID, err := strconv.ParseInt(fs.Arg(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid trade id %q", fs.Arg(1))
	}

	ex, err := stratlab.NewClient(*server).Explain(ctx, fs.Arg(0), tradeID)
	if err != nil {
		return err
	}
	fmt.Printf("run %s trade %d: %s %s\n", ex.RunID, ex.TradeID, ex.Side, ex.Symbol)
	keys := make([]string, 0, len(ex.DecisionTrace))
	for k := range ex.DecisionTrace {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-16s %v\n", k, ex.DecisionTrace[k])
	}
	return nil
}
