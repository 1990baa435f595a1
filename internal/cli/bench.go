package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/respkv/respkv/internal/protocol"
)

var benchTests = []string{"ping", "set", "get", "mixed", "lpush", "sadd"}

type benchOptions struct {
	clients  int
	requests int
	test     string
}

// benchResult summarises one run.
type benchResult struct {
	Completed int64
	Errors    int64
	Elapsed   time.Duration
	P50       time.Duration
	P99       time.Duration
}

func (r benchResult) print(w io.Writer) {
	fmt.Fprintln(w, "====== Results ======")
	fmt.Fprintf(w, "Total time: %v\n", r.Elapsed)
	fmt.Fprintf(w, "Completed: %d\n", r.Completed)
	fmt.Fprintf(w, "Errors: %d\n", r.Errors)
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "Requests/sec: %.2f\n", float64(r.Completed)/r.Elapsed.Seconds())
	}
	fmt.Fprintf(w, "p50 latency: %v\n", r.P50)
	fmt.Fprintf(w, "p99 latency: %v\n", r.P99)
}

func newBenchCommand(opts *options) *cobra.Command {
	bo := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the server with parallel clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(benchTests, bo.test) {
				return fmt.Errorf("unknown test %q (want one of %v)", bo.test, benchTests)
			}
			if bo.clients <= 0 || bo.requests <= 0 {
				return fmt.Errorf("clients and requests must be positive")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "====== respkv benchmark ======")
			fmt.Fprintf(out, "Server: %s\n", opts.addr)
			fmt.Fprintf(out, "Clients: %d\n", bo.clients)
			fmt.Fprintf(out, "Requests: %d\n", bo.requests)
			fmt.Fprintf(out, "Test: %s\n\n", bo.test)

			res, err := runBench(cmd.Context(), opts, bo)
			if err != nil {
				return err
			}
			res.print(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&bo.clients, "clients", "c", 50, "number of parallel clients")
	cmd.Flags().IntVarP(&bo.requests, "requests", "n", 100000, "total number of requests")
	cmd.Flags().StringVarP(&bo.test, "test", "t", "mixed", fmt.Sprintf("test type: %v", benchTests))
	return cmd
}

// benchArgs returns the command issued by client id for request j.
func benchArgs(test string, id, j int) []string {
	key := fmt.Sprintf("key:%d:%d", id, j)
	value := fmt.Sprintf("value:%d:%d", id, j)

	switch test {
	case "set":
		return []string{"SET", key, value}
	case "get":
		return []string{"GET", key}
	case "mixed":
		if j%2 == 0 {
			return []string{"SET", key, value}
		}
		return []string{"GET", fmt.Sprintf("key:%d:%d", id, j-1)}
	case "lpush":
		return []string{"LPUSH", fmt.Sprintf("list:%d", id), value}
	case "sadd":
		return []string{"SADD", fmt.Sprintf("set:%d", id), value}
	default:
		return []string{"PING"}
	}
}

// runBench spreads bo.requests over bo.clients connections. A failed dial
// aborts the run; failed requests are counted.
func runBench(ctx context.Context, opts *options, bo *benchOptions) (benchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var completed, failed atomic.Int64
	var mu sync.Mutex
	latencies := make([]time.Duration, 0, bo.requests)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := 0; i < bo.clients; i++ {
		n := bo.requests / bo.clients
		if i < bo.requests%bo.clients {
			n++
		}
		g.Go(func() error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			local := make([]time.Duration, 0, n)
			for j := 0; j < n; j++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t0 := time.Now()
				v, err := c.Do(benchArgs(bo.test, i, j)...)
				if err != nil || v.Type == protocol.TypeError {
					failed.Add(1)
					continue
				}
				local = append(local, time.Since(t0))
				completed.Add(1)
			}

			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}

	res := benchResult{
		Completed: completed.Load(),
		Errors:    failed.Load(),
		Elapsed:   time.Since(start),
	}
	slices.Sort(latencies)
	res.P50 = percentile(latencies, 50)
	res.P99 = percentile(latencies, 99)
	return res, nil
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)*p + 99) / 100
	if idx > 0 {
		idx--
	}
	return sorted[idx]
}
