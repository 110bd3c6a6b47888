// Command csyncload drives concurrent device pairs against a running
// broker and reports push-to-observe latency percentiles and
// throughput, the same worker-pool-plus-percentile-report shape as the
// teacher's load test tool, retargeted from escrow transaction
// sequestering onto broker push/pull round trips.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	brokerclient "github.com/fioncat/csync-go/internal/broker/client"
	"github.com/fioncat/csync-go/internal/syncengine"
)

type loadConfig struct {
	Addr            string
	Password        string
	Pairs           int
	MessagesPerPair int
	PayloadSize     int
	ObserveTimeout  time.Duration
	ReportInterval  time.Duration
}

// counters is the subset of results updated from worker goroutines via
// atomics while the run is in flight.
type counters struct {
	totalPushes uint64
	observed    uint64
	timedOut    uint64
	maxLatency  int64 // nanoseconds
	minLatency  int64 // nanoseconds
}

// loadResult is the final, non-atomic snapshot printResults reports on,
// built only after every worker goroutine has returned.
type loadResult struct {
	counters
	totalDuration time.Duration
	latencies     []time.Duration
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7703", "broker address")
	password := flag.String("password", "", "broker password, empty disables encryption")
	pairs := flag.Int("pairs", 10, "number of concurrent device pairs")
	messages := flag.Int("messages", 50, "messages pushed per pair")
	size := flag.Int("size", 256, "payload size in bytes")
	observeTimeout := flag.Duration("observe-timeout", 2*time.Second, "max wait for a peer to observe a push")
	reportInterval := flag.Duration("report", 2*time.Second, "stats reporting interval")
	flag.Parse()

	cfg := loadConfig{
		Addr:            *addr,
		Password:        *password,
		Pairs:           *pairs,
		MessagesPerPair: *messages,
		PayloadSize:     *size,
		ObserveTimeout:  *observeTimeout,
		ReportInterval:  *reportInterval,
	}

	slog.Info("starting csyncload", "addr", cfg.Addr, "pairs", cfg.Pairs, "messages_per_pair", cfg.MessagesPerPair)
	result := runLoadTest(cfg)
	printResults(result)
}

func runLoadTest(cfg loadConfig) *loadResult {
	stats := &counters{minLatency: int64(time.Hour)}

	var latencies []time.Duration
	var latenciesMu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reportProgress(ctx, stats, cfg.ReportInterval)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < cfg.Pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(ctx, cfg, pairID, stats, &latencies, &latenciesMu)
		}(i)
	}
	wg.Wait()

	latenciesMu.Lock()
	snapshot := append([]time.Duration(nil), latencies...)
	latenciesMu.Unlock()

	return &loadResult{
		counters:      *stats,
		totalDuration: time.Since(start),
		latencies:     snapshot,
	}
}

// runPair dials one publisher/subscriber pair, pushes MessagesPerPair
// payloads from the "sender" device and polls the "receiver" device's
// Read until it observes each one or ObserveTimeout elapses.
func runPair(ctx context.Context, cfg loadConfig, pairID int, stats *counters, latencies *[]time.Duration, mu *sync.Mutex) {
	sender := fmt.Sprintf("load-sender-%d", pairID)
	receiver := fmt.Sprintf("load-receiver-%d", pairID)

	senderClient, err := brokerclient.Dial(brokerclient.Config{
		Addr: cfg.Addr, Password: []byte(cfg.Password), Device: sender, Peers: []string{receiver},
	})
	if err != nil {
		slog.Error("csyncload: sender dial failed", "pair", pairID, "err", err)
		return
	}
	defer senderClient.Close()

	receiverClient, err := brokerclient.Dial(brokerclient.Config{
		Addr: cfg.Addr, Password: []byte(cfg.Password), Device: receiver, Peers: []string{sender},
	})
	if err != nil {
		slog.Error("csyncload: receiver dial failed", "pair", pairID, "err", err)
		return
	}
	defer receiverClient.Close()

	for i := 0; i < cfg.MessagesPerPair; i++ {
		payload := randomPayload(cfg.PayloadSize)

		start := time.Now()
		if err := senderClient.Write(ctx, syncengine.KindText, payload); err != nil {
			slog.Warn("csyncload: push failed", "pair", pairID, "seq", i, "err", err)
			continue
		}
		atomic.AddUint64(&stats.totalPushes, 1)

		if !waitForObservation(ctx, receiverClient, payload, cfg.ObserveTimeout) {
			atomic.AddUint64(&stats.timedOut, 1)
			continue
		}
		latency := time.Since(start)
		atomic.AddUint64(&stats.observed, 1)
		recordLatency(stats, latency)

		mu.Lock()
		*latencies = append(*latencies, latency)
		mu.Unlock()
	}
}

func waitForObservation(ctx context.Context, c *brokerclient.Client, payload []byte, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := c.Read(ctx, syncengine.KindText)
		if err == nil && string(data) == string(payload) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
	return false
}

func recordLatency(stats *counters, latency time.Duration) {
	n := int64(latency)
	for {
		cur := atomic.LoadInt64(&stats.maxLatency)
		if n <= cur || atomic.CompareAndSwapInt64(&stats.maxLatency, cur, n) {
			break
		}
	}
	for {
		cur := atomic.LoadInt64(&stats.minLatency)
		if n >= cur || atomic.CompareAndSwapInt64(&stats.minLatency, cur, n) {
			break
		}
	}
}

func randomPayload(size int) []byte {
	b := make([]byte, size)
	rand.Read(b)
	return b
}

func reportProgress(ctx context.Context, stats *counters, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("csyncload progress",
				"pushed", atomic.LoadUint64(&stats.totalPushes),
				"observed", atomic.LoadUint64(&stats.observed),
				"timed_out", atomic.LoadUint64(&stats.timedOut))
		case <-ctx.Done():
			return
		}
	}
}

func printResults(r *loadResult) {
	separator := "================================================================================"
	divider := "--------------------------------------------------------------------------------"

	fmt.Println("\n" + separator)
	fmt.Println("CSYNCLOAD RESULTS")
	fmt.Println(separator)
	fmt.Printf("Total Pushes:     %d\n", r.totalPushes)
	successRate := 0.0
	if r.totalPushes > 0 {
		successRate = float64(r.observed) / float64(r.totalPushes) * 100
	}
	fmt.Printf("Observed:         %d (%.2f%%)\n", r.observed, successRate)
	fmt.Printf("Timed Out:        %d\n", r.timedOut)
	fmt.Println(divider)
	fmt.Printf("Total Duration:   %v\n", r.totalDuration)
	if r.totalDuration > 0 {
		fmt.Printf("Throughput:       %.2f pushes/sec\n", float64(r.totalPushes)/r.totalDuration.Seconds())
	}
	fmt.Println(divider)
	fmt.Printf("Latency (min):    %v\n", time.Duration(r.minLatency))
	fmt.Printf("Latency (avg):    %v\n", average(r.latencies))
	fmt.Printf("Latency (p95):    %v\n", percentile(r.latencies, 95))
	fmt.Printf("Latency (p99):    %v\n", percentile(r.latencies, 99))
	fmt.Printf("Latency (max):    %v\n", time.Duration(r.maxLatency))
	fmt.Println(separator + "\n")
}

func average(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
