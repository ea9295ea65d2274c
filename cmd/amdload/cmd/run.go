package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/amd"
	"github.com/GoCodeAlone/amd/feeders"
)

type runOptions struct {
	bootstrap string
	root      string
	envPrefix string
	output    string
	order     string
	timeout   time.Duration
	watch     bool

	metricsAddr string
	metrics     *amd.MetricsObserver
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run BOOTSTRAP",
		Short: "Boot the main module of a bootstrap document",
		Long: `Boot the main module named by a bootstrap document and print its value.

The bootstrap document is YAML, TOML or JSON with a "config" table and a
"main" module id. Environment variables with the configured prefix
(AMD_MAIN, AMD_BASE_URL, AMD_URL_ARGS, AMD_TIMEOUT, AMD_ORDER) override it.

Module URLs are read from --root, which defaults to the directory of the
bootstrap document; http and https URLs are fetched over the network.

Examples:
  amdload run app.yaml
  amdload run app.toml --output yaml
  amdload run app.yaml --watch
  amdload run app.yaml --watch --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.bootstrap = args[0]
			if opts.root == "" {
				opts.root = filepath.Dir(opts.bootstrap)
			}
			return runBoot(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.root, "root", "", "Directory module URLs are resolved against")
	cmd.Flags().StringVar(&opts.envPrefix, "env-prefix", "AMD", "Prefix of environment overrides; empty disables them")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "Output format: json or yaml")
	cmd.Flags().StringVar(&opts.order, "order", "", "Override the dequeue order: fifo or lifo")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up waiting for the main module after this long")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Boot again in a fresh loader whenever a file changes")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics of loader events on this address while running")

	return cmd
}

func runBoot(cmd *cobra.Command, opts *runOptions) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if opts.metricsAddr != "" {
		opts.metrics = amd.NewMetricsObserver("amd")
		reg := prometheus.NewRegistry()
		if err := reg.Register(opts.metrics); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := serve(srvCtx, opts.metricsAddr, NewMetricsHandler(reg), logger); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	if opts.watch {
		return watchBoot(ctx, opts, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return bootOnce(ctx, opts, logger, cmd.OutOrStdout())
}

// loadBootstrap feeds the bootstrap file, then the environment.
func loadBootstrap(path, envPrefix string) (amd.Bootstrap, error) {
	file, err := feeders.ForFile(path)
	if err != nil {
		return amd.Bootstrap{}, err
	}
	sources := []feeders.Feeder{file}
	if envPrefix != "" {
		sources = append(sources, feeders.NewEnvFeeder(envPrefix, ""))
	}
	return amd.LoadBootstrap(sources...)
}

// newFetcher serves http and https URLs from the network and everything
// else from root.
func newFetcher(root string) amd.Fetcher {
	files := &amd.FileFetcher{Root: root}
	web := &amd.HTTPFetcher{}
	return amd.FetcherFunc(func(host amd.ScriptHost, url string, timeout time.Duration, onComplete func(string), onError func(error)) {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			web.Fetch(host, url, timeout, onComplete, onError)
			return
		}
		files.Fetch(host, url, timeout, onComplete, onError)
	})
}

func bootOnce(ctx context.Context, opts *runOptions, logger amd.Logger, out io.Writer) error {
	b, err := loadBootstrap(opts.bootstrap, opts.envPrefix)
	if err != nil {
		return err
	}
	if opts.order != "" {
		b.Order = opts.order
	}

	loaderOpts := []amd.Option{
		amd.WithFetcher(newFetcher(opts.root)),
		amd.WithLogger(logger),
		amd.WithErrorHook(func(err error) {
			logger.Error("Module failed with no one waiting", "error", err)
		}),
	}
	if opts.metrics != nil {
		loaderOpts = append(loaderOpts, amd.WithObserver(opts.metrics))
	}
	loader := amd.NewLoader(loaderOpts...)
	defer loader.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	value, err := loader.Run(ctx, b)
	if err != nil {
		return err
	}
	return writeValue(out, opts.output, value)
}

func writeValue(out io.Writer, format string, value any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// watchBoot boots once, then again in a fresh loader after files below the
// bootstrap directory or the module root change.
func watchBoot(ctx context.Context, opts *runOptions, logger amd.Logger, out, errOut io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dirs := map[string]bool{filepath.Dir(opts.bootstrap): true, opts.root: true}
	for dir := range dirs {
		if err := addTree(watcher, dir); err != nil {
			return err
		}
	}

	boot := func() {
		if err := bootOnce(ctx, opts, logger, out); err != nil {
			fmt.Fprintf(errOut, "Error: %s\n", err)
		}
	}
	boot()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("File changed", "path", event.Name, "op", event.Op.String())
				pending = time.After(100 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error", "error", err)
		case <-pending:
			pending = nil
			boot()
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
