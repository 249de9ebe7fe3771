package relay

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dRelay/cmd/util"
	"github.com/ValentinKolb/dRelay/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for relay endpoints",
		Long:    `Sends APDUs to the target from several goroutines and reports latency percentiles and throughput. Run "drelay serve" as target to measure the relay itself.`,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads   = 10
	perfRequests     = 1000
	perfRate         = 0.0
	perfLargePayload = 1024
	perfSkip         = make([]string, 0)

	// SELECT by AID, the first command of every payment card session
	perfSelectAPDU = []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10, 0x00}

	perfPercentiles = []float64{0.5, 0.9, 0.99}
)

// perfResult is the outcome of one load test
type perfResult struct {
	name     string
	timer    gometrics.Timer
	failures int64
	elapsed  time.Duration
	skipped  bool
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Tests to skip (comma separated - e.g. oneshot,persistent-large)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines sending requests"))
	key = "requests"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of requests per test"))
	key = "rate"
	perfTestCmd.Flags().Float64(key, 0, util.WrapString("Maximum requests per second over all goroutines, 0 means unlimited"))
	key = "large-payload-size"
	perfTestCmd.Flags().Int(key, 1024, util.WrapString("Payload size of the *-large tests in bytes (must fit the frame caps of both ends)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save results as CSV"))
	key = "metrics"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Print all collected metrics in Prometheus text format afterward"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfRequests = max(viper.GetInt("requests"), 1)
	perfRate = viper.GetFloat64("rate")
	perfLargePayload = viper.GetInt("large-payload-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if !relayConfig.Target.IsConfigured() {
		return common.NewError(common.RetCConfigurationMissing, "set --host and --port or store a target first")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for relay endpoints")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(relayConfig.String())
	fmt.Printf("Threads: %d, Requests: %d, Rate: %s\n", perfNumThreads, perfRequests, formatRate(perfRate))
	fmt.Println()

	if err := relayManager.Start(); err != nil {
		return err
	}
	defer relayManager.Stop()

	registry := gometrics.NewRegistry()
	largePayload := make([]byte, perfLargePayload)
	tgt := relayConfig.Target

	tests := []struct {
		name    string
		payload []byte
		send    func(payload []byte) error
	}{
		{"persistent", perfSelectAPDU, func(p []byte) error {
			_, err := relayManager.Submit(p, relayConfig.RequestTimeout)
			return err
		}},
		{"persistent-large", largePayload, func(p []byte) error {
			_, err := relayManager.Submit(p, relayConfig.RequestTimeout)
			return err
		}},
		{"oneshot", perfSelectAPDU, func(p []byte) error {
			_, err := relayForwarder.Forward(tgt.Host, tgt.Port, p, relayConfig.RequestTimeout)
			return err
		}},
		{"oneshot-large", largePayload, func(p []byte) error {
			_, err := relayForwarder.Forward(tgt.Host, tgt.Port, p, relayConfig.RequestTimeout)
			return err
		}},
	}

	fmt.Println("starting tests...")

	results := make([]perfResult, 0, len(tests))
	for _, test := range tests {
		var result perfResult
		if shouldSkip(test.name) {
			result = perfResult{name: test.name, skipped: true}
		} else {
			result = runLoad(test.name, registry, test.payload, test.send)
		}
		results = append(results, result)
		printResult(result)
	}

	stats := relayManager.Stats()
	fmt.Printf("\nconnects: %d (failed %d), completed: %d, failed: %d\n",
		stats.Connects, stats.ConnectFailure, stats.Completed, stats.Failed)

	if viper.GetBool("metrics") {
		fmt.Println()
		relayManager.WriteMetrics(os.Stdout)
		gometrics.WriteOnce(registry, os.Stdout)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runLoad sends perfRequests payloads from perfNumThreads goroutines, paced by perfRate
func runLoad(name string, registry gometrics.Registry, payload []byte, send func([]byte) error) perfResult {
	timer := gometrics.NewRegisteredTimer(name, registry)
	failures := gometrics.NewRegisteredCounter(name+".failures", registry)

	var limiter *rate.Limiter
	if perfRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(perfRate), 1)
	}

	var (
		remaining = int64(perfRequests)
		wg        sync.WaitGroup
	)

	start := time.Now()
	for i := 0; i < perfNumThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.AddInt64(&remaining, -1) >= 0 {
				if limiter != nil {
					_ = limiter.Wait(context.Background())
				}
				begin := time.Now()
				if err := send(payload); err != nil {
					failures.Inc(1)
				}
				timer.UpdateSince(begin)
			}
		}()
	}
	wg.Wait()

	return perfResult{
		name:     name,
		timer:    timer.Snapshot(),
		failures: failures.Count(),
		elapsed:  time.Since(start),
	}
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func opsPerSec(r perfResult) float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

func formatRate(r float64) string {
	if r <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%.0f req/s", r)
}

// printResult prints the result of a load test in a formatted way
func printResult(r perfResult) {
	if r.skipped {
		fmt.Printf("%-20sskipped\n", r.name)
		return
	}

	p := r.timer.Percentiles(perfPercentiles)
	fmt.Printf("%-20sp50 %-12s p90 %-12s p99 %-12s %.0f ops/sec\t%d failed\n",
		r.name,
		time.Duration(p[0]),
		time.Duration(p[1]),
		time.Duration(p[2]),
		opsPerSec(r),
		r.failures,
	)
}

// writeResultsToCSV writes the load test results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Requests", "Failed", "MeanNs", "P50Ns", "P90Ns", "P99Ns", "OpsPerSec", "Skipped",
		"Target", "Threads", "Rate", "LargePayloadBytes", "MaxFrameSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		row := []string{r.name}
		if r.skipped {
			row = append(row, "0", "0", "0", "0", "0", "0", "0", "true")
		} else {
			p := r.timer.Percentiles(perfPercentiles)
			row = append(row,
				strconv.FormatInt(r.timer.Count(), 10),
				strconv.FormatInt(r.failures, 10),
				fmt.Sprintf("%.0f", r.timer.Mean()),
				fmt.Sprintf("%.0f", p[0]),
				fmt.Sprintf("%.0f", p[1]),
				fmt.Sprintf("%.0f", p[2]),
				fmt.Sprintf("%.0f", opsPerSec(r)),
				"false",
			)
		}
		row = append(row,
			relayConfig.Target.String(),
			strconv.Itoa(perfNumThreads),
			fmt.Sprintf("%.1f", perfRate),
			strconv.Itoa(perfLargePayload),
			strconv.FormatUint(uint64(relayConfig.MaxFrameSize), 10),
		)

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}

	return nil
}
