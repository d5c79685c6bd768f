package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/filesystem"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/metrics"
	"github.com/brettbedarf/memfs/requests"
	"github.com/brettbedarf/memfs/server"
)

// pathList collects a repeatable string flag
type pathList []string

func (l *pathList) String() string {
	return strings.Join(*l, ",")
}

func (l *pathList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	// Parse command line arguments
	var (
		configPath  string
		verbose     int
		nodesDef    string
		umount      bool
		metricsAddr string
		resolve     pathList
		noFollow    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&nodesDef, "nodes", "", "Path to nodes def file (YAML or JSON)")
	flag.StringVar(&nodesDef, "n", "", "--nodes (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", config.InfoVerbose, "--verbose (shorthand)")
	flag.StringVar(&metricsAddr, "metrics", "", "Serve prometheus metrics on this address (e.g. :9090)")
	flag.Var(&resolve, "resolve", "Resolve this path, print the outcome and exit without mounting (repeatable)")
	flag.BoolVar(&noFollow, "nofollow", false, "Do not follow a final symbolic link with -resolve")
	flag.Parse()

	// Build the config: defaults, then file, then flags
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		override, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
		cfg.Merge(override)
	}
	flagOverride := &config.ConfigOverride{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v", "verbose":
			flagOverride.LogLvl = &verbose
		case "metrics":
			flagOverride.MetricsAddr = &metricsAddr
		}
	})
	if configPath == "" {
		flagOverride.LogLvl = &verbose
	}
	cfg.Merge(flagOverride)

	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("nodes", nodesDef).Str("mnt", mnt).Msg("memfs initializing")
	if mnt == "" && len(resolve) == 0 {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var opts []filesystem.Option
	if cfg.MetricsAddr != "" {
		metrics.InitRegistry()
		opts = append(opts, filesystem.WithMetrics(metrics.NewLookupMetrics()))
		srv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	fs, err := filesystem.NewFS(cfg, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create filesystem")
	}

	// Load nodes
	if nodesDef != "" {
		registry := adapters.NewRegistry()
		adapters.RegisterBuiltins(registry)
		set, err := requests.LoadNodesFile(nodesDef, registry)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to load nodes file")
		}
		if err := set.ApplyTo(requests.FileSystemAdder(fs)); err != nil {
			logger.Warn().Err(err).Msg("Some nodes could not be added")
		}
	} else {
		logger.Warn().Msg("No nodes file provided")
	}

	if len(resolve) > 0 {
		lh := filesystem.FollowLinks
		if noFollow {
			lh = filesystem.NoFollowLinks
		}
		for _, line := range resolveAll(ctx, fs, resolve, lh) {
			fmt.Println(line)
		}
		return
	}

	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	memfs := server.New(cfg, fs)
	if err := memfs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	<-ctx.Done()
	logger.Info().Msg("Received signal, unmounting filesystem")

	if err := memfs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
}

// resolveAll looks up every path concurrently and returns one line per
// path, in argument order
func resolveAll(ctx context.Context, fs *filesystem.FileSystem, paths []string, lh filesystem.LinkHandling) []string {
	lines := make([]string, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			lines[i] = describe(fs, p, lh)
			return nil
		})
	}
	_ = g.Wait()
	return lines
}

func describe(fs *filesystem.FileSystem, path string, lh filesystem.LinkHandling) string {
	res, err := fs.Lookup(path, lh)
	if err != nil {
		return fmt.Sprintf("error %s: %v", path, err)
	}
	if !res.Found() {
		return fmt.Sprintf("%s %s", res.Status(), path)
	}

	// the root's parent is the root
	parent := "/"
	if res.File() != fs.Root() {
		if parent, err = fs.PathOf(res.Parent()); err != nil {
			parent = "?"
		}
	}
	return fmt.Sprintf("found %s parent=%s name=%s kind=%s", path, parent, res.Name(), res.File().Kind())
}
