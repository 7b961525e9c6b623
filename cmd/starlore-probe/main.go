// Command starlore-probe drives the visit tracker against a running server
// and prints the dashboard view of the result. With -watch it keeps polling
// like the dashboard does.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"starlore/internal/analytics"
	"starlore/internal/dashboard"
	"starlore/internal/tracker"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "starlore server base URL")
	dataDir := flag.String("data", "", "badger directory for the visitor id and local mirror (empty keeps them in memory)")
	watch := flag.Bool("watch", false, "keep polling stats every 5s until interrupted")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(*baseURL, *dataDir, *watch, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(baseURL, dataDir string, watch bool, paths []string) error {
	persistent, err := tracker.OpenBadger(dataDir)
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}
	defer persistent.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := tracker.New(persistent, tracker.NewMemoryStorage(), tracker.NewHTTPSender(baseURL))
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	for _, p := range paths {
		ev := t.Track(ctx, p)
		printEvent(os.Stdout, p, ev)
	}

	poller := dashboard.NewPoller(dashboard.NewHTTPFetcher(baseURL), t.Mirror())
	if !watch {
		printSnapshot(os.Stdout, poller.Refresh(ctx))
		return nil
	}
	poller.Run(ctx, func(s dashboard.Snapshot) { printSnapshot(os.Stdout, s) })
	return nil
}

func printEvent(w io.Writer, path string, ev tracker.Event) {
	status := "delivered"
	if !ev.Delivered {
		status = "not delivered"
	}
	fmt.Fprintf(w, "%s -> %s (session %s, new=%t): %s\n", path, ev.Page, ev.SessionID, ev.IsNewSession, status)
}

func printSnapshot(w io.Writer, s dashboard.Snapshot) {
	st := s.Stats
	sum := dashboard.Summarize(st)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "source\t%s\t%s\n", s.Source, s.FetchedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "total visits\t%d\n", st.TotalVisits)
	fmt.Fprintf(tw, "unique visitors\t%d\n", st.UniqueVisitors)
	fmt.Fprintf(tw, "today\t%d\n", st.TodayVisits)
	fmt.Fprintf(tw, "bounce rate\t%.1f%%\n", st.BounceRate)
	fmt.Fprintf(tw, "week\t%d total, %d/day avg, %d peak\n", sum.WeekTotal, sum.DailyAverage, sum.PeakDay)

	for _, d := range st.DailyStats {
		fmt.Fprintf(tw, "  %s\t%d\n", d.Label, d.Visits)
	}

	share := st.PageViewShare
	if share == nil {
		share = analytics.Distribution(st.PageViews)
	}
	for _, p := range share {
		fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\n", dashboard.PageLabel(p.Page), p.Views, p.Percentage)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}
