// Command goSession-loadtest measures the refresh path under a token-expiry
// storm: every round expires all access tokens and fires concurrent requests
// that must each refresh and replay. It runs once with single-flight refresh
// and once without, against an in-process bank API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/fakebank"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/tokenstore"
)

const (
	email    = "load@bank.test"
	password = "password"
)

func main() {
	var (
		rounds      = flag.Int("rounds", 50, "expiry rounds per phase")
		concurrency = flag.Int("concurrency", 64, "concurrent requests per round")
		latency     = flag.Duration("refresh-delay", 5*time.Millisecond, "artificial refresh endpoint latency")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "store key prefix")
		dumpMetrics = flag.Bool("prometheus", false, "print client metrics in Prometheus text format after each phase")
	)
	flag.Parse()

	if *rounds <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds and concurrency must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	fmt.Println("---- results ----")
	for _, singleFlight := range []bool{true, false} {
		name := "single-flight"
		if !singleFlight {
			name = "independent"
		}
		stats, refreshes, metrics, err := runPhase(rdb, *prefix+":"+name, singleFlight, *rounds, *concurrency, *latency)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		printStats(name, stats, refreshes)
		if *dumpMetrics {
			fmt.Print(metrics)
		}
	}
}

func runPhase(rdb redis.UniversalClient, prefix string, singleFlight bool, rounds, concurrency int, delay time.Duration) (phaseStats, int64, string, error) {
	ctx := context.Background()

	bank, err := fakebank.New(fakebank.Options{RefreshDelay: delay})
	if err != nil {
		return phaseStats{}, 0, "", err
	}
	bank.AddUser(email, password, goSession.RoleUser)
	bank.AddAccount(email, 1, 1_000, "1234")

	r := chi.NewRouter()
	r.Mount("/api", bank.Handler())
	srv := httptest.NewServer(r)
	defer srv.Close()

	cfg := goSession.DefaultConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Pipeline.SingleFlightRefresh = singleFlight
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	transport := &http.Transport{MaxIdleConnsPerHost: concurrency}
	client, err := goSession.New().
		WithConfig(cfg).
		WithStore(tokenstore.NewRedis(rdb, prefix)).
		WithHTTPClient(&http.Client{Transport: transport}).
		Build()
	if err != nil {
		return phaseStats{}, 0, "", err
	}
	defer client.Close()

	if err := client.Login(ctx, email, password); err != nil {
		return phaseStats{}, 0, "", fmt.Errorf("login: %w", err)
	}

	var (
		failures  int64
		latencies = make([]time.Duration, 0, rounds*concurrency)
		mu        sync.Mutex
	)

	start := time.Now()
	for round := 0; round < rounds; round++ {
		bank.ExpireAccessTokens()
		var wg sync.WaitGroup
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				_, err := client.ListAccounts(ctx)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		wg.Wait()
	}
	total := time.Since(start)
	return computeStats(total, latencies, failures), bank.RefreshCalls(), prometheus.NewPrometheusExporter(client).Render(), nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats, refreshes int64) {
	fmt.Printf("%s: ops=%d failures=%d refreshes=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		refreshes,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
