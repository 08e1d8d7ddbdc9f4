package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jizpi/arm-ledger/internal/client"
	"github.com/jizpi/arm-ledger/internal/feed"
	"github.com/jizpi/arm-ledger/internal/view"
)

func newWatchCmd() *cobra.Command {
	var opts client.ListOptions
	var delay time.Duration
	var interactive bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow visits live",
		Long: `Print today's figures and the first page of visits, and print them again
whenever the server reports a change. With --interactive every line typed
on stdin replaces the search text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var input io.Reader
			if interactive {
				input = cmd.InOrStdin()
			}
			return runWatch(ctx, out(cmd), newAPIClient(), opts, delay, input)
		},
	}

	addFilterFlags(cmd, &opts)
	cmd.Flags().DurationVar(&delay, "debounce", view.DefaultDebounce, "quiet period before redrawing")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read search text from stdin")

	return cmd
}

// watcher redraws the view after changes settle.
type watcher struct {
	c   *client.Client
	w   io.Writer
	deb *view.Debouncer

	mu    sync.Mutex
	opts  client.ListOptions
	state *feed.State
}

func (wt *watcher) setSearch(text string) {
	wt.mu.Lock()
	wt.opts.Filter.Text = text
	wt.opts.Page = 1
	wt.mu.Unlock()
	wt.deb.Trigger(wt.render)
}

func (wt *watcher) setState(st *feed.State) {
	wt.mu.Lock()
	wt.state = st
	wt.mu.Unlock()
	wt.deb.Trigger(wt.render)
}

func (wt *watcher) render() {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	fmt.Fprintf(wt.w, "\n== %s ==\n", time.Now().Format("15:04:05"))
	if st := wt.state; st != nil {
		s := st.Stats
		fmt.Fprintf(wt.w, "Today %s: %d   Month: %d (%+d%%)   Records: %d\n",
			s.Today, s.TodayCount, s.MonthCount, s.Growth, s.TotalRecords)
		if st.LastError != "" {
			fmt.Fprintf(wt.w, "warning: figures may be stale: %s\n", st.LastError)
		}
	}
	if q := wt.opts.Filter.Text; q != "" {
		fmt.Fprintf(wt.w, "Search: %q\n", q)
	}

	page, err := wt.c.ListVisits(wt.opts)
	if err != nil {
		fmt.Fprintf(wt.w, "error: %v\n", err)
		return
	}
	if err := printPage(wt.w, page); err != nil {
		fmt.Fprintf(wt.w, "error: %v\n", err)
	}
}

// runWatch follows the event stream until ctx ends. input, when set,
// supplies new search text one line at a time.
func runWatch(ctx context.Context, w io.Writer, c *client.Client, opts client.ListOptions, delay time.Duration, input io.Reader) error {
	wt := &watcher{c: c, w: w, deb: view.NewDebouncer(delay), opts: opts}
	defer wt.deb.Stop()

	if input != nil {
		go func() {
			scanner := bufio.NewScanner(input)
			for scanner.Scan() {
				wt.setSearch(strings.TrimSpace(scanner.Text()))
			}
		}()
	}

	err := c.Events(ctx, func(st *feed.State) bool {
		wt.setState(st)
		return true
	})
	if err != nil {
		return err
	}
	if ctx.Err() == nil {
		return fmt.Errorf("event stream closed by server")
	}
	return nil
}
