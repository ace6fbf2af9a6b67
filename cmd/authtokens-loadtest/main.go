// Command authtokens-loadtest measures access verification and refresh
// rotation throughput against Redis or an in-process miniredis.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authtokens"
)

type principalState struct {
	id      string
	access  string
	refresh string
	csrf    string
	mu      sync.Mutex
}

func main() {
	var (
		principals  = flag.Int("principals", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "session key prefix")
		atomicRot   = flag.Bool("atomic", false, "enable atomic refresh rotation")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authtokens.DefaultConfig()
	cfg.Tokens.SignSecret = "loadtest-sign-secret-0123456789"
	cfg.Tokens.EncryptSecret = "loadtest-encrypt-secret-0123456789"
	cfg.Tokens.RandomBytesSize = 32
	cfg.Storage.RedisPrefix = *prefix
	cfg.Refresh.AtomicRotation = *atomicRot
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := authtokens.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]principalState, *principals)
	fmt.Printf("seeding %d sessions...\n", *principals)
	startSeed := time.Now()
	for i := range states {
		id := fmt.Sprintf("principal-%d", i)
		set, err := engine.Issue(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = principalState{id: id, access: set.AccessToken, refresh: set.RefreshToken, csrf: set.CSRFToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		set, err := engine.Refresh(ctx, s.refresh, s.csrf)
		if err != nil {
			return err
		}
		s.access, s.refresh, s.csrf = set.AccessToken, set.RefreshToken, set.CSRFToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	fmt.Printf("engine refresh histogram: %v\n", engine.MetricsSnapshot().Histograms[authtokens.MetricRefreshLatency])
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
