package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// benchOptions configures a same-handle load run.
type benchOptions struct {
	Handle     string
	Requests   int
	Workers    int
	Mode       string
	Language   string
	FraudEvery int
}

// benchResult tracks a load run. Counters are updated atomically by workers.
type benchResult struct {
	Processed int64
	Fraud     int64
	Legit     int64
	Errors    int64
	Recurring int64
	Fallbacks int64

	CountBefore int64
	CountAfter  int64

	Duration  time.Duration
	latencies []time.Duration
}

// LostUpdates is the number of fraudulent verdicts that did not reach the
// persisted history.
func (r *benchResult) LostUpdates() int64 {
	return r.Fraud - (r.CountAfter - r.CountBefore)
}

func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Fire concurrent predictions at one handle and verify its history",
		Long: `Bench sends concurrent predictions for a single payment handle and then
compares the persisted fraud_count with the number of fraudulent verdicts
returned. Any difference means updates were lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var opts benchOptions
			opts.Handle, _ = f.GetString("handle")
			opts.Requests, _ = f.GetInt("requests")
			opts.Workers, _ = f.GetInt("workers")
			opts.Mode, _ = f.GetString("mode")
			opts.Language, _ = f.GetString("language")
			opts.FraudEvery, _ = f.GetInt("fraud-every")
			timeout, _ := f.GetDuration("timeout")

			out := cmd.OutOrStdout()
			client := newAPIClient(baseURL(cmd), timeout)

			fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════════╗")
			fmt.Fprintln(out, "║            FRAUDGUARD BENCHMARK - Same-handle load            ║")
			fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════════╝")
			fmt.Fprintf(out, "\nAPI URL:     %s\n", client.baseURL)
			fmt.Fprintf(out, "UPI ID:      %s\n", opts.Handle)
			fmt.Fprintf(out, "Requests:    %d\n", opts.Requests)
			fmt.Fprintf(out, "Workers:     %d\n", opts.Workers)
			fmt.Fprintf(out, "Mode:        %s\n\n", opts.Mode)

			if err := client.checkHealth(cmd.Context()); err != nil {
				return fmt.Errorf("fraudguard not reachable at %s: %w", client.baseURL, err)
			}
			fmt.Fprintln(out, "✓ FraudGuard is healthy")

			result, err := runBench(cmd.Context(), client, opts)
			if err != nil {
				return err
			}
			printBenchResults(out, result)

			if lost := result.LostUpdates(); lost != 0 {
				return fmt.Errorf("history mismatch: %d fraudulent verdicts, fraud_count moved by %d",
					result.Fraud, result.CountAfter-result.CountBefore)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("handle", "bench@upi", "Payment handle every request uses")
	f.IntP("requests", "n", 200, "Number of predictions to send")
	f.IntP("workers", "w", 20, "Number of concurrent workers")
	f.StringP("mode", "m", "fast", "Model mode (fast, accurate)")
	f.StringP("language", "l", "en", "Explanation language")
	f.Int("fraud-every", 2, "Send a high-risk transaction every N requests (0 = never)")
	f.Duration("timeout", 45*time.Second, "Per-request timeout")

	return cmd
}

// benchRequest returns the i-th request of a run. Every FraudEvery-th
// request carries a high-risk profile.
func benchRequest(opts benchOptions, i int) *domain.TransactionInput {
	req := &domain.TransactionInput{
		UPIID:                opts.Handle,
		Amount:               420,
		AmountDeviation:      0.1,
		TimeAnomaly:          0.05,
		LocationDistance:     2,
		MerchantNovelty:      0.1,
		TransactionFrequency: 3,
		Mode:                 domain.Mode(opts.Mode),
		Language:             domain.Language(opts.Language),
	}
	if opts.FraudEvery > 0 && i%opts.FraudEvery == 0 {
		req.Amount = 98000
		req.AmountDeviation = 6.5
		req.TimeAnomaly = 0.95
		req.LocationDistance = 1800
		req.MerchantNovelty = 0.9
		req.TransactionFrequency = 40
	}
	return req
}

func runBench(ctx context.Context, client *apiClient, opts benchOptions) (*benchResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	before, err := client.fraudCount(ctx, opts.Handle)
	if err != nil {
		return nil, fmt.Errorf("reading history before run: %w", err)
	}
	res := &benchResult{CountBefore: before}

	work := make(chan int, opts.Workers)
	latencies := make(chan time.Duration, opts.Requests)
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				t := time.Now()
				out, err := client.predict(ctx, domain.NewPredictRequest(benchRequest(opts, i)))
				latencies <- time.Since(t)
				atomic.AddInt64(&res.Processed, 1)

				if err != nil {
					atomic.AddInt64(&res.Errors, 1)
					continue
				}
				if out.Fraud {
					atomic.AddInt64(&res.Fraud, 1)
				} else {
					atomic.AddInt64(&res.Legit, 1)
				}
				if out.RecurringFraud {
					atomic.AddInt64(&res.Recurring, 1)
				}
				if opts.Mode != "" && string(out.ModelUsed) != opts.Mode {
					atomic.AddInt64(&res.Fallbacks, 1)
				}
			}
		}()
	}

	for i := 0; i < opts.Requests; i++ {
		select {
		case work <- i:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()
	close(latencies)
	res.Duration = time.Since(start)

	for l := range latencies {
		res.latencies = append(res.latencies, l)
	}
	sort.Slice(res.latencies, func(i, j int) bool { return res.latencies[i] < res.latencies[j] })

	after, err := client.fraudCount(ctx, opts.Handle)
	if err != nil {
		return nil, fmt.Errorf("reading history after run: %w", err)
	}
	res.CountAfter = after
	return res, nil
}

// percentile returns the p-th percentile of the sorted latencies.
func (r *benchResult) percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	idx := int(p * float64(len(r.latencies)-1))
	return r.latencies[idx]
}

func printBenchResults(w io.Writer, r *benchResult) {
	fmt.Fprintln(w, "\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      BENCHMARK RESULTS                        ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════╝")

	fmt.Fprintf(w, "\nVERDICTS\n")
	fmt.Fprintf(w, "   Total Processed:  %d\n", r.Processed)
	fmt.Fprintf(w, "   Fraud:            %d\n", r.Fraud)
	fmt.Fprintf(w, "   Legitimate:       %d\n", r.Legit)
	fmt.Fprintf(w, "   Recurring:        %d\n", r.Recurring)
	fmt.Fprintf(w, "   Model Fallbacks:  %d\n", r.Fallbacks)
	fmt.Fprintf(w, "   Errors:           %d\n", r.Errors)

	fmt.Fprintf(w, "\nHISTORY\n")
	fmt.Fprintf(w, "   fraud_count before: %d\n", r.CountBefore)
	fmt.Fprintf(w, "   fraud_count after:  %d\n", r.CountAfter)
	if lost := r.LostUpdates(); lost == 0 {
		fmt.Fprintln(w, "   ✓ every fraudulent verdict was persisted")
	} else {
		fmt.Fprintf(w, "   ✗ %d updates lost\n", lost)
	}

	fmt.Fprintf(w, "\nPERFORMANCE\n")
	fmt.Fprintf(w, "   Total Duration:   %v\n", r.Duration.Round(time.Millisecond))
	if r.Processed > 0 && r.Duration > 0 {
		fmt.Fprintf(w, "   p50 Latency:      %v\n", r.percentile(0.50).Round(time.Microsecond))
		fmt.Fprintf(w, "   p99 Latency:      %v\n", r.percentile(0.99).Round(time.Microsecond))
		fmt.Fprintf(w, "   Throughput:       %.2f req/sec\n", float64(r.Processed)/r.Duration.Seconds())
	}
	fmt.Fprintln(w)
}
