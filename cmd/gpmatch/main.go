// Package main provides the gpmatch CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/plan-systems/klog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/cache"
	"github.com/szrrizvi/arebac/pkg/config"
	"github.com/szrrizvi/arebac/pkg/dataset"
	"github.com/szrrizvi/arebac/pkg/eval"
	"github.com/szrrizvi/arebac/pkg/indexed"
	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
	"github.com/szrrizvi/arebac/pkg/patterntext"
	"github.com/szrrizvi/arebac/pkg/pool"
	"github.com/szrrizvi/arebac/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	errEvalFailed    = errors.New("evaluation failed")
	errIncomplete    = errors.New("some queries did not complete")
	errBadBinding    = errors.New("binding must look like name=id")
	errTwoBackends   = errors.New("use either --graph or --data-dir, not both")
	errNoDataDir     = errors.New("no data directory: pass --data-dir or set storage.data_dir")
	errUnusedBinding = errors.New("binding names no variable of any query")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every command.
type app struct {
	cfgPath     string
	metricsAddr string
	klogFlags   *flag.FlagSet
	cfg         *config.Config
	metrics     *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{klogFlags: flag.NewFlagSet("klog", flag.ContinueOnError)}
	klog.InitFlags(a.klogFlags)
	_ = a.klogFlags.Set("logtostderr", "true")

	rootCmd := &cobra.Command{
		Use:   "gpmatch",
		Short: "gpmatch - graph pattern matching with forward checking and backjumping",
		Long: `gpmatch finds every embedding of a small pattern graph in a large
labelled, directed target graph.

Targets are either dataset files, indexed in memory, or a BadgerDB store
filled with "gpmatch load". Patterns use a small MATCH / WHERE / RETURN
language.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().AddGoFlagSet(a.klogFlags)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpmatch v%s (%s)\n", version, commit)
		},
	})

	// Load command
	loadCmd := &cobra.Command{
		Use:   "load [dataset]",
		Short: "Bulk-load a dataset file into a BadgerDB store",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runLoad,
	}
	loadCmd.Flags().String("data-dir", "", "Data directory (default: storage.data_dir)")
	rootCmd.AddCommand(loadCmd)

	// Match command
	matchCmd := &cobra.Command{
		Use:   "match [pattern-file]",
		Short: "Run every query of a pattern file and print the result rows",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runMatch,
	}
	matchCmd.Flags().String("graph", "", "Dataset file to index in memory")
	matchCmd.Flags().String("data-dir", "", "BadgerDB store to query")
	matchCmd.Flags().Duration("timeout", 0, "Watchdog deadline per query (default: match.timeout)")
	matchCmd.Flags().StringArray("bind", nil, "Pin a pattern variable to a node id (name=id, repeatable)")
	rootCmd.AddCommand(matchCmd)

	// Eval command
	evalCmd := &cobra.Command{
		Use:   "eval [suite]",
		Short: "Run an evaluation suite against a dataset file",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runEval,
	}
	evalCmd.Flags().String("graph", "", "Dataset file to index in memory")
	evalCmd.Flags().String("json", "", "Save results to this JSON file")
	evalCmd.Flags().String("output", "summary", "Output format: summary, detailed, json, compact")
	evalCmd.Flags().Int("concurrency", 0, "Cases run at once (default: eval.concurrency)")
	evalCmd.Flags().Bool("verify", false, "Cross-check every case against brute-force enumeration")
	evalCmd.Flags().Duration("timeout", 0, "Watchdog deadline per case (default: match.timeout)")
	_ = evalCmd.MarkFlagRequired("graph")
	rootCmd.AddCommand(evalCmd)

	return rootCmd
}

// setup loads configuration and applies the process-wide settings.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if !cmd.Flags().Changed("v") && cfg.Logging.Verbosity > 0 {
		_ = a.klogFlags.Set("v", strconv.Itoa(cfg.Logging.Verbosity))
	}
	pool.Configure(pool.PoolConfig{
		Enabled: cfg.Memory.PoolEnabled,
		MaxSize: int(cfg.Memory.PoolMaxSize),
	})
	cfg.Memory.ApplyRuntimeMemory()
	klog.V(2).Infof("gpmatch: %s", cfg)

	if a.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metrics = &http.Server{Addr: a.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.Errorf("gpmatch: metrics server: %v", err)
			}
		}()
		klog.V(1).Infof("gpmatch: serving metrics on %s/metrics", a.metricsAddr)
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.metrics.Shutdown(ctx)
}

func (a *app) openStore(dataDir string, create bool) (*storage.BadgerEngine, error) {
	if dataDir == "" {
		dataDir = a.cfg.Storage.DataDir
	}
	if dataDir == "" {
		return nil, errNoDataDir
	}
	if create {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	} else if _, err := os.Stat(dataDir); err != nil {
		return nil, fmt.Errorf("opening data directory: %w", err)
	}
	return storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    dataDir,
		SyncWrites: a.cfg.Storage.SyncWrites,
		Logger:     storage.KlogLogger{},
		Policy:     a.cfg.Policy(),
	})
}

func (a *app) loadGraph(path string) (*indexed.Graph, error) {
	ds, err := dataset.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	g := indexed.FromDataset(ds, a.cfg.Policy())
	klog.V(1).Infof("gpmatch: indexed %s: %d nodes, %d edges, %d relation types",
		path, g.NodeCount(), g.EdgeCount(), len(g.RelTypes()))
	return g, nil
}

func (a *app) runLoad(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	out := cmd.OutOrStdout()

	ds, err := dataset.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}
	engine, err := a.openStore(dataDir, true)
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	if err := engine.BulkLoad(cmd.Context(), ds); err != nil {
		return fmt.Errorf("bulk load: %w", err)
	}
	nodes, err := engine.NodeCount()
	if err != nil {
		return err
	}
	edges, err := engine.EdgeCount()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %s: %d nodes, %d edges in %v\n",
		args[0], nodes, edges, time.Since(start).Round(time.Millisecond))
	return nil
}

func (a *app) runMatch(cmd *cobra.Command, args []string) error {
	graphPath, _ := cmd.Flags().GetString("graph")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	binds, _ := cmd.Flags().GetStringArray("bind")
	timeout := a.cfg.Match.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if graphPath != "" && dataDir != "" {
		return errTwoBackends
	}

	holders, err := patterntext.ParseFile(args[0])
	if err != nil {
		return err
	}
	named, err := parseBindings(binds)
	if err != nil {
		return err
	}
	if err := checkBindings(holders, named); err != nil {
		return err
	}

	opts := []match.Option{match.WithTimeout(timeout)}
	if a.cfg.Match.Trace {
		opts = append(opts, match.WithTracer(match.LogTracer{}))
	}
	q := queries{holders: holders, bindings: named, opts: opts}

	if graphPath != "" {
		g, err := a.loadGraph(graphPath)
		if err != nil {
			return err
		}
		var access match.Access[indexed.NodeID] = indexed.NewAccess(g, nil)
		if a.cfg.Cache.Enabled {
			access = cache.NewAccess(access, cache.NewNeighbourCache[indexed.NodeID](a.cfg.Cache.Size, a.cfg.Cache.TTL))
		}
		return runQueries(cmd.Context(), cmd.OutOrStdout(), q, access, g.Policy(), g.ExternalID)
	}

	engine, err := a.openStore(dataDir, false)
	if err != nil {
		return err
	}
	defer engine.Close()
	var access match.Access[storage.NodeID] = storage.NewAccess(engine, nil)
	if a.cfg.Cache.Enabled {
		access = cache.NewAccess(access, cache.NewNeighbourCache[storage.NodeID](a.cfg.Cache.Size, a.cfg.Cache.TTL))
	}
	return runQueries(cmd.Context(), cmd.OutOrStdout(), q, access, engine.Policy(),
		func(n storage.NodeID) string { return string(n) })
}

type queries struct {
	holders  []*pattern.Holder
	bindings map[string]string
	opts     []match.Option
}

// runQueries checks every query in turn and prints its rows.
func runQueries[N comparable](ctx context.Context, w io.Writer, q queries, access match.Access[N], p *attrs.Policy, name func(N) string) error {
	incomplete := 0
	for i, h := range q.holders {
		e, err := match.New(h, match.Strategies[N]{
			Access:    access,
			Evaluator: match.NewChecker[N](h, p),
		}, q.opts...)
		if err != nil {
			return fmt.Errorf("query %d: %w", i+1, err)
		}
		res, err := e.CheckWithBindings(ctx, resolveBindings(h, q.bindings))
		if res == nil {
			return fmt.Errorf("query %d: %w", i+1, err)
		}
		printResult(w, i+1, res, name)
		if err != nil {
			fmt.Fprintf(w, "  error: %v\n", err)
			incomplete++
		}
		fmt.Fprintln(w)
	}
	if incomplete > 0 {
		return fmt.Errorf("%w: %d of %d", errIncomplete, incomplete, len(q.holders))
	}
	return nil
}

func printResult[N comparable](w io.Writer, n int, res *match.Result[N], name func(N) string) {
	fmt.Fprintf(w, "# query %d: %s, %d rows in %v (assignments=%d prunes=%d backjumps=%d)\n",
		n, res.Status, len(res.Rows), res.Stats.Duration.Round(time.Microsecond),
		res.Stats.Assignments, res.Stats.Prunes, res.Stats.Backjumps)
	if res.Status != match.StatusCompleted {
		return
	}
	header := make([]string, len(res.Schema))
	for i, v := range res.Schema {
		header[i] = v.Name()
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, id := range row {
			cells[i] = name(id)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// parseBindings reads name=id pairs.
func parseBindings(binds []string) (map[string]string, error) {
	if len(binds) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(binds))
	for _, b := range binds {
		name, id, ok := strings.Cut(b, "=")
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if !ok || name == "" || id == "" {
			return nil, fmt.Errorf("%w: %q", errBadBinding, b)
		}
		out[name] = id
	}
	return out, nil
}

// checkBindings rejects bindings that no query can use.
func checkBindings(holders []*pattern.Holder, named map[string]string) error {
	for name := range named {
		used := false
		for _, h := range holders {
			if _, ok := h.Graph().Node(name); ok {
				used = true
				break
			}
		}
		if !used {
			return fmt.Errorf("%w: %s", errUnusedBinding, name)
		}
	}
	return nil
}

// resolveBindings keeps the bindings whose variable occurs in h.
func resolveBindings(h *pattern.Holder, named map[string]string) map[*pattern.Node]string {
	var out map[*pattern.Node]string
	for name, id := range named {
		v, ok := h.Graph().Node(name)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[*pattern.Node]string, len(named))
		}
		out[v] = id
	}
	return out
}

func (a *app) runEval(cmd *cobra.Command, args []string) error {
	graphPath, _ := cmd.Flags().GetString("graph")
	jsonPath, _ := cmd.Flags().GetString("json")
	output, _ := cmd.Flags().GetString("output")
	concurrency := a.cfg.Eval.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	verify := a.cfg.Eval.Verify
	if cmd.Flags().Changed("verify") {
		verify, _ = cmd.Flags().GetBool("verify")
	}
	timeout := a.cfg.Match.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetDuration("timeout")
	}

	g, err := a.loadGraph(graphPath)
	if err != nil {
		return err
	}
	harness := eval.NewHarness(g)
	harness.SetTimeout(timeout)
	harness.SetConcurrency(concurrency)
	harness.SetVerify(verify)
	if a.cfg.Cache.Enabled {
		harness.UseCache(cache.NewNeighbourCache[indexed.NodeID](a.cfg.Cache.Size, a.cfg.Cache.TTL))
	}
	if err := harness.LoadSuite(args[0]); err != nil {
		return err
	}

	result, err := harness.Run(cmd.Context())
	if err != nil {
		return err
	}

	reporter := eval.NewReporter(cmd.OutOrStdout())
	switch output {
	case "detailed":
		reporter.PrintSummary(result)
		reporter.PrintDetails(result)
	case "json":
		if err := reporter.PrintJSON(result); err != nil {
			return err
		}
	case "compact":
		reporter.PrintCompact(result)
	default:
		reporter.PrintSummary(result)
	}

	if jsonPath != "" {
		if err := reporter.SaveJSON(result, jsonPath); err != nil {
			return err
		}
		klog.V(1).Infof("gpmatch: results saved to %s", jsonPath)
	}

	if !result.Passed() {
		return fmt.Errorf("%w: %d/%d passed", errEvalFailed, result.PassedTests, result.TotalTests)
	}
	return nil
}
