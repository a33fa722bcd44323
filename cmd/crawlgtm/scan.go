package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ofjaaah-tools/crawlGTM/recon"
	"github.com/ofjaaah-tools/crawlGTM/sched"
	"github.com/ofjaaah-tools/crawlGTM/session"
)

var scanFlags struct {
	user      string
	query     string
	ids       []string
	file      string
	postsFile string
	urls      []string
	fofaQuery string

	deep     bool
	maxDepth int
	lookup   bool
	workers  int

	hours      int
	days       int
	statusAddr string
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the discovery pipeline once, or on a schedule with --hours/--days",
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanFlags.user, "user", "u", "", "collect a user's public post timeline")
	f.StringVarP(&scanFlags.query, "query", "q", "", "collect keyword search results")
	f.StringSliceVar(&scanFlags.ids, "ids", nil, "analyze explicit container ids")
	f.StringVarP(&scanFlags.file, "file", "f", "", "scan a local text/JSON file")
	f.StringVar(&scanFlags.postsFile, "posts-file", "", "scan an exported posts dump")
	f.StringSliceVar(&scanFlags.urls, "urls", nil, "fetch and scan pages")
	f.StringVar(&scanFlags.fofaQuery, "fofa", "", "discover hosts with a FOFA query")

	f.BoolVar(&scanFlags.deep, "deep", false, "follow linked containers")
	f.IntVar(&scanFlags.maxDepth, "max-depth", 3, "traversal depth bound in deep mode")
	f.BoolVar(&scanFlags.lookup, "lookup", false, "reverse-lookup every analyzed container")
	f.IntVar(&scanFlags.workers, "workers", 10, "concurrent network requests")

	f.IntVar(&scanFlags.hours, "hours", 0, fmt.Sprintf("repeat every N hours (%d..%d)", sched.MinHours, sched.MaxHours))
	f.IntVar(&scanFlags.days, "days", 0, fmt.Sprintf("repeat every N days (%d..%d)", sched.MinDays, sched.MaxDays))
	f.StringVar(&scanFlags.statusAddr, "status-addr", "127.0.0.1:7621", "daemon status listener address")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := newLogger()

	// Interval bounds are checked before any work starts.
	scheduled := scanFlags.hours != 0 || scanFlags.days != 0
	var interval sched.Interval
	if scheduled {
		var err error
		interval, err = sched.ParseInterval(scanFlags.hours, scanFlags.days)
		if err != nil {
			return err
		}
	}

	cfg := recon.Config{
		User:      scanFlags.user,
		Query:     scanFlags.query,
		IDs:       scanFlags.ids,
		FilePath:  scanFlags.file,
		PostsFile: scanFlags.postsFile,
		URLs:      scanFlags.urls,
		FofaQuery: scanFlags.fofaQuery,
		Deep:      scanFlags.deep,
		MaxDepth:  scanFlags.maxDepth,
		Lookup:    scanFlags.lookup,
		Workers:   scanFlags.workers,
		OutputDir: outputDir,
		Logger:    log,
	}
	loadCredentials(&cfg)

	svc, err := recon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// The detached child skips the foreground scan; its parent already
	// ran it before detaching.
	if !sched.InDaemon() {
		res, err := svc.Run(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("scan complete: %d containers, %d domains, report %s\n",
			res.NewContainers, res.DomainsFound, res.ReportPath)
		if !scheduled {
			return nil
		}
		pid, err := sched.Detach(filepath.Join(outputDir, sched.LogFile))
		if err != nil {
			return fmt.Errorf("detach: %w", err)
		}
		fmt.Printf("scheduler started: pid %d, every %s\n", pid, interval)
		return nil
	}

	daemon, err := sched.NewDaemon(sched.DaemonConfig{
		Interval:   interval,
		Dir:        outputDir,
		StatusAddr: scanFlags.statusAddr,
		Logger:     log,
		Run: func(ctx context.Context) error {
			_, err := svc.Run(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}
	return daemon.Serve(ctx)
}

// loadCredentials wires stored session blobs into the run config.
// Missing blobs just leave the authenticated links to their fallbacks.
func loadCredentials(cfg *recon.Config) {
	if s, err := session.Open(session.XSessionFile); err == nil {
		if c, err := s.Load(); err == nil {
			cfg.XAuthHeaders = c.Headers
		} else if !errors.Is(err, session.ErrMissing) {
			cfg.Logger.Warn("session: x blob unreadable", "error", err)
		}
	}
	if s, err := session.Open(session.BuiltWithFile); err == nil {
		if c, err := s.Load(); err == nil {
			cfg.BuiltWithCookies = c.Headers["Cookie"]
		}
	}
	if s, err := session.Open(session.FofaKeyFile); err == nil {
		if c, err := s.Load(); err == nil {
			cfg.FofaKey = c.Headers["Key"]
		}
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the scheduler daemon and last-run state",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		st := sched.Inspect(outputDir, log)
		if st.PID == 0 {
			fmt.Println("scheduler: not running")
		} else if st.Running {
			fmt.Printf("scheduler: running, pid %d\n", st.PID)
		} else {
			fmt.Printf("scheduler: stale lock for pid %d\n", st.PID)
		}

		last, runs := recon.HistoryInfo(outputDir, log)
		if last.IsZero() {
			fmt.Println("last run: never")
			return nil
		}
		fmt.Printf("last run: %s\n", last.Format("2006-01-02 15:04:05 MST"))
		if n := len(runs); n > 0 {
			r := runs[n-1]
			fmt.Printf("  items %d, new containers %d, domains %d\n",
				r.Items, r.NewContainers, r.DomainsFound)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running scheduler daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := sched.Stop(outputDir, newLogger())
		if err != nil {
			return err
		}
		fmt.Printf("sent stop signal to pid %d\n", pid)
		return nil
	},
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Reset the seen-posts/seen-containers history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := recon.ClearHistory(outputDir, newLogger()); err != nil {
			return err
		}
		fmt.Println("history cleared; next scan reprocesses everything")
		return nil
	},
}
