package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/harvester/internal/cliconfig"
	"github.com/bft-labs/harvester/pkg/harvester"
	"github.com/bft-labs/harvester/pkg/log"
	"github.com/bft-labs/harvester/plugins/configwatcher"
)

const longHelp = `Download a county's full account extract from an EagleWeb assessor site.

The site only serves reports for bounded account-ID ranges, so the ID space
is split into ranges of roughly equal size, each range is downloaded as a
part file, and the parts are merged into one CSV.

Progress lives in the part file names. Rerunning download resumes where the
last run stopped and refills any holes.`

var exampleUsage = strings.TrimSpace(`
  harvester download --tenant grand
  harvester download --tenant eagle --parts 60 --workers 2 --noinput
  harvester gaps --tenant grand
  harvester merge --tenant grand --compression xz --publish s3://exports
  harvester clean --tenant grand
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig(), prompt: newPrompter(os.Stdin, os.Stderr)}

	root := &cobra.Command{
		Use:               "harvester",
		Short:             "Bulk-download assessor account data in resumable ranges",
		Long:              longHelp,
		Example:           exampleUsage,
		Version:           fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}
	c.bindFlags(root.PersistentFlags())

	root.AddCommand(
		c.downloadCommand(),
		c.mergeCommand(),
		c.gapsCommand(),
		c.cleanCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger := c.logger
		if logger == nil {
			logger = c.cfg.Logger()
		}
		logger.Error("harvester", log.Err(err))
		os.Exit(1)
	}
}

// cli holds the state shared by all subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *log.ZerologAdapter
	prompt  *prompter
}

func (c *cli) bindFlags(f *pflag.FlagSet) {
	cfg := &c.cfg
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.harvester/config.toml)")

	f.StringVar(&cfg.Tenant, "tenant", cfg.Tenant, "county to download, e.g. grand or clear_creek")
	f.StringVar(&cfg.SiteURL, "site-url", cfg.SiteURL, "site base URL, may contain {tenant} (default: known site for the tenant)")
	f.StringVar(&cfg.TemplateID, "template-id", cfg.TemplateID, "report template to generate")
	f.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header sent to the site")

	f.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "root directory for per-tenant downloads")
	f.StringVar(&cfg.ExportFile, "export-file", cfg.ExportFile, "merged export file name")
	f.StringVar(&cfg.Compression, "compression", cfg.Compression, "export compression: none or xz")
	f.StringVar(&cfg.PublishURL, "publish", cfg.PublishURL, "bucket URL to upload the export to (s3://, gs://, file://, mem://)")
	f.StringVar(&cfg.PublishPrefix, "publish-prefix", cfg.PublishPrefix, "object key prefix inside the bucket")

	f.IntVar(&cfg.Parts, "parts", cfg.Parts, "desired number of part files")
	f.IntVar(&cfg.PagesDelta, "pages-delta", cfg.PagesDelta, "accepted pages above the per-part target")
	f.IntVar(&cfg.InitialSpan, "initial-span", cfg.InitialSpan, "first boundary probe offset (0 doubles the start)")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent range downloads")
	f.IntVar(&cfg.RetryPasses, "retry-passes", cfg.RetryPasses, "passes over failed ranges after partitioning")
	f.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "attempts per page-count query")

	f.DurationVar(&cfg.RoundWait, "round-wait", cfg.RoundWait, "pause between download rounds")
	f.DurationVar(&cfg.PollInterval, "check-report-interval", cfg.PollInterval, "report generation poll interval")
	f.DurationVar(&cfg.ReportTimeout, "report-timeout", cfg.ReportTimeout, "give up on a report after this long")
	f.DurationVar(&cfg.OracleDelay, "oracle-delay", cfg.OracleDelay, "minimum spacing between page-count queries")
	f.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")
	f.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "initial page-count retry backoff")
	f.DurationVar(&cfg.RetryMaxBackoff, "retry-max-backoff", cfg.RetryMaxBackoff, "maximum page-count retry backoff")

	f.BoolVar(&cfg.NoInput, "noinput", cfg.NoInput, "never prompt; assume continue and replace")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json")
}

// load applies the config file and environment under the flags, then validates.
func (c *cli) load(cmd *cobra.Command, args []string) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
		c.cfgPath = cfgFile
	} else if c.cfgPath != "" {
		return fmt.Errorf("config file %s not found", c.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = c.cfg.Logger()
	c.prompt.enabled = !c.cfg.NoInput
	c.logger.Debug("configuration",
		log.String("tenant", c.cfg.Tenant),
		log.String("site_url", c.cfg.SiteURL),
		log.String("parts_dir", c.cfg.PartsDir()),
		log.String("config_file", c.cfgPath),
	)
	return nil
}

func (c *cli) harvester(opts ...harvester.Option) (*harvester.Harvester, error) {
	cfg := c.cfg
	libCfg := harvester.Config{
		Tenant:          cfg.Tenant,
		SiteURL:         cfg.SiteURL,
		TemplateID:      cfg.TemplateID,
		UserAgent:       cfg.UserAgent,
		DownloadDir:     cfg.DownloadDir,
		ExportFile:      cfg.ExportFile,
		Compression:     cfg.Compression,
		PublishURL:      cfg.PublishURL,
		PublishPrefix:   cfg.PublishPrefix,
		Parts:           cfg.Parts,
		PagesDelta:      cfg.PagesDelta,
		InitialSpan:     cfg.InitialSpan,
		Workers:         cfg.Workers,
		RoundWait:       cfg.RoundWait,
		PollInterval:    cfg.PollInterval,
		ReportTimeout:   cfg.ReportTimeout,
		OracleDelay:     cfg.OracleDelay,
		HTTPTimeout:     cfg.HTTPTimeout,
		RetryPasses:     cfg.RetryPasses,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		RetryMaxBackoff: cfg.RetryMaxBackoff,
	}
	opts = append([]harvester.Option{harvester.WithLogger(c.logger)}, opts...)
	h, err := harvester.New(libCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create harvester: %w", err)
	}
	return h, nil
}

func (c *cli) downloadCommand() *cobra.Command {
	var noMerge bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Partition the ID space and download every range, then merge",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var opts []harvester.Option
			if c.cfgPath != "" {
				opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{Path: c.cfgPath}))
			}
			h, err := c.harvester(opts...)
			if err != nil {
				return err
			}

			parts, err := h.Parts(ctx)
			if err != nil {
				return err
			}
			if len(parts) > 0 {
				restart, err := c.prompt.choose(
					fmt.Sprintf("%d part files already exist in %s. [c]ontinue or [r]estart?", len(parts), c.cfg.PartsDir()),
					"c", "r",
				)
				if err != nil {
					return err
				}
				if restart == "r" {
					if _, err := h.Clean(ctx); err != nil {
						return err
					}
				}
			}

			summary, err := h.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if !summary.OK() {
				return fmt.Errorf("%d ranges still failing; run download again to retry them", len(summary.Failed))
			}
			if noMerge {
				return nil
			}
			return c.merge(cmd, h, harvester.MergeOptions{})
		},
	}
	cmd.Flags().BoolVar(&noMerge, "no-merge", false, "skip merging after a complete download")
	return cmd
}

func (c *cli) mergeCommand() *cobra.Command {
	var opts harvester.MergeOptions
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge part files into the export",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.harvester()
			if err != nil {
				return err
			}
			return c.merge(cmd, h, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "merge even when parts have gaps or no open-ended tail")
	cmd.Flags().BoolVar(&opts.SkipPublish, "no-publish", false, "keep the export local even when --publish is set")
	return cmd
}

func (c *cli) merge(cmd *cobra.Command, h *harvester.Harvester, opts harvester.MergeOptions) error {
	if h.ExportExists() {
		ok, err := c.prompt.confirm(fmt.Sprintf("%s exists. Replace it?", h.ExportPath()), true)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "export kept")
			return nil
		}
	}

	res, err := h.Merge(cmd.Context(), opts)
	if errors.Is(err, harvester.ErrMergeBlocked) {
		return fmt.Errorf("%w; run download to fill them or merge --force", err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "export: %s\n", res.Path)
	fmt.Fprintf(out, "parts:  %d\n", res.Parts)
	fmt.Fprintf(out, "bytes:  %d\n", res.Bytes)
	fmt.Fprintf(out, "blake3: %s\n", res.Digest)
	for _, g := range res.Gaps {
		fmt.Fprintf(out, "missing: %s\n", g)
	}
	if res.Unterminated {
		fmt.Fprintln(out, "warning: last part is not open-ended")
	}
	if res.Published != "" {
		fmt.Fprintf(out, "published: %s\n", res.Published)
	}
	return nil
}

func (c *cli) gapsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gaps",
		Short: "Show holes in the downloaded ID space",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := c.harvester()
			if err != nil {
				return err
			}
			rep, err := h.Gaps(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "parts: %d\n", rep.Parts)
			for _, g := range rep.Gaps {
				fmt.Fprintf(out, "gap: %s\n", g)
			}
			switch {
			case rep.Parts == 0:
				fmt.Fprintln(out, "nothing downloaded yet")
			case rep.Unterminated:
				fmt.Fprintln(out, "last part is not open-ended; the download has not reached the end")
			case rep.Complete():
				fmt.Fprintln(out, "complete")
			}

			if last, err := h.LastRun(cmd.Context()); err == nil && last.RunID != "" {
				fmt.Fprintf(out, "last run: %s started %s finished=%v completed=%d failed=%d\n",
					last.RunID, last.StartedAt.Format("2006-01-02 15:04:05"), last.Finished, last.Completed, len(last.Failed))
			}
			return nil
		},
	}
}

func (c *cli) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the tenant's part files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := c.prompt.confirm(fmt.Sprintf("Delete all part files in %s?", c.cfg.PartsDir()), true)
			if err != nil || !ok {
				return err
			}
			h, err := c.harvester()
			if err != nil {
				return err
			}
			res, err := h.Clean(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d part files (%d bytes)\n", res.Parts, res.Bytes)
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, s harvester.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pages: %d, per part: %d\n", s.Plan.TotalPages, s.Plan.PagesPerPart)
	fmt.Fprintf(out, "downloaded: %d, skipped: %d, attempts: %d, rounds: %d\n", s.Completed, s.Skipped, s.Attempts, s.Rounds)
	for _, f := range s.Failed {
		fmt.Fprintf(out, "failed: %s (attempts=%d)\n", f, f.Attempts)
	}
}
