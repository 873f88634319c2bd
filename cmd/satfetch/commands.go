package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/satfetch/satfetch/lib/config"
	"github.com/satfetch/satfetch/lib/pool"
	"github.com/satfetch/satfetch/version"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "satfetch",
		Short: "satfetch - pooled access to public satellite imagery buckets",
		Long: `satfetch reads public S3-compatible imagery buckets anonymously.
Every command borrows clients from one bounded connection pool, so
repeated operations reuse connections instead of opening new ones.`,
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath(), "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&a.metricsListen, "metrics-listen", "", "Serve /metrics on this address while running")

	rootCmd.AddCommand(listCmd(a))
	rootCmd.AddCommand(getCmd(a))
	rootCmd.AddCommand(pingCmd(a))
	rootCmd.AddCommand(configCmd(a))

	return rootCmd
}

// run wraps a pooled command with setup, signal handling and shutdown.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, p *pool.Pool) error) error {
	if err := a.setup(); err != nil {
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := a.pool()
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

// listCmd lists objects under a prefix
func listCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List objects in the bucket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			return a.run(cmd, func(ctx context.Context, p *pool.Pool) error {
				objects, err := a.fetcher(p, a.cfg.Fetch.Workers).List(ctx, prefix, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, o := range objects {
					fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of objects to list (0 for all)")
	return cmd
}

// getCmd downloads objects
func getCmd(a *app) *cobra.Command {
	var outDir string
	var workers int

	cmd := &cobra.Command{
		Use:   "get <key>...",
		Short: "Download objects to a local directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, p *pool.Pool) error {
				dir := a.cfg.Fetch.OutputDir
				if outDir != "" {
					dir = outDir
				}
				n := a.cfg.Fetch.Workers
				if workers > 0 {
					n = workers
				}

				results, err := a.fetcher(p, n).DownloadAll(ctx, args, dir)
				for _, r := range results {
					switch {
					case r.Skipped:
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\tskipped\n", r.Path, r.Bytes)
					case r.Path != "":
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n", r.Path, r.Bytes, r.Duration.Round(time.Millisecond))
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (overrides config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent downloads (overrides config)")
	return cmd
}

// pingCmd checks the bucket is reachable and shows pool reuse
func pingCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping the bucket through the pool and print pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, p *pool.Pool) error {
				for i := 0; i < count; i++ {
					start := time.Now()
					err := p.Do(ctx, func(c pool.Client) error {
						return c.Ping(ctx)
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "ping %d: ok (%s)\n", i+1, time.Since(start).Round(time.Millisecond))
				}
				fmt.Fprintln(cmd.OutOrStdout(), p.Stats().String())
				fmt.Fprintf(cmd.OutOrStdout(), "connect circuit: %s\n", a.factory.Breaker().State())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of pings")
	return cmd
}

// configCmd manages the configuration file
func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			}
			if err := config.SaveConfig(config.DefaultConfig(), a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}
