package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsync/credstore"
	"github.com/MrEthical07/authsync/session"
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer the session store and the Redis credential store",
	Long: `Run concurrent writers against one session store while a reader checks that
no partial session is ever visible, then run Save/Load cycles against the Redis
credential store.

Examples:
  authsync stress
  authsync stress --writers 16 --ops 500000
  authsync stress --redis-addr 127.0.0.1:6379`,
	RunE: runStress,
}

func init() {
	rootCmd.AddCommand(stressCmd)

	stressCmd.Flags().Int("writers", 8, "concurrent writers")
	stressCmd.Flags().Int("ops", 200000, "operations per phase")
	stressCmd.Flags().String("redis-addr", "", "redis address; AUTHSYNC_REDIS_ADDR or miniredis when empty")
	stressCmd.Flags().String("prefix", "authsync:stress", "credential key prefix")
}

func runStress(cmd *cobra.Command, args []string) error {
	writers, _ := cmd.Flags().GetInt("writers")
	ops, _ := cmd.Flags().GetInt("ops")
	redisAddr, _ := cmd.Flags().GetString("redis-addr")
	prefix, _ := cmd.Flags().GetString("prefix")
	if writers <= 0 || ops <= 0 {
		return fmt.Errorf("writers and ops must be > 0")
	}
	out := cmd.OutOrStdout()

	storeStats, err := runStorePhase(ops, writers)
	if err != nil {
		return err
	}

	if redisAddr == "" {
		redisAddr = cfg.RedisAddr
	}
	client, cleanup, err := redisClient(out, redisAddr)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	credStats := runCredentialPhase(ctx, client, prefix, ops, writers)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "store", storeStats)
	printStats(out, "credstore", credStats)
	return nil
}

func redisClient(out io.Writer, addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Fprintf(out, "using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

// runStorePhase fails when a reader observes a partial session or when the
// cache ends up diverged from the store.
func runStorePhase(ops, writers int) (phaseStats, error) {
	cache := session.NewTokenCache()
	store := session.NewStore(cache)

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
		violation atomic.Value
		stop      = make(chan struct{})
		readers   sync.WaitGroup
	)

	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := store.Snapshot()
			empty := s.AccessToken == "" && s.IDToken == "" && s.User == nil
			if !empty && !s.Authenticated() {
				violation.Store(fmt.Sprintf("partial session observed: %+v", s))
				return
			}
		}
	}()

	start := time.Now()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				tok := fmt.Sprintf("%d-%d", worker, i)
				t0 := time.Now()
				var err error
				switch r.Intn(8) {
				case 0:
					store.ClearAuth()
				case 1, 2:
					err = store.SetTokens("acc-"+tok, "id-"+tok)
					if errors.Is(err, session.ErrAnonymous) {
						err = nil
					}
				default:
					err = store.SetSession("acc-"+tok, "id-"+tok, session.User{Username: "user-" + tok})
				}
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
	total := time.Since(start)
	close(stop)
	readers.Wait()

	if v, ok := violation.Load().(string); ok {
		return phaseStats{}, fmt.Errorf("store invariant broken: %s", v)
	}
	if cache.Token() != store.IDToken() {
		return phaseStats{}, fmt.Errorf("cache %q diverged from store %q", cache.Token(), store.IDToken())
	}
	return computeStats(total, latencies, failures), nil
}

func runCredentialPhase(ctx context.Context, client redis.UniversalClient, prefix string, ops, writers int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			store := credstore.NewRedis(client, fmt.Sprintf("%s:%d", prefix, worker), time.Hour)
			defer func() { _ = store.Delete(ctx) }()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				want := credstore.Credentials{
					SessionToken: fmt.Sprintf("tok-%d-%d", worker, i),
					Username:     fmt.Sprintf("user-%d", worker),
					IdentityID:   fmt.Sprintf("id-%d", worker),
					ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
				}
				t0 := time.Now()
				err := store.Save(ctx, want)
				var got credstore.Credentials
				if err == nil {
					got, err = store.Load(ctx)
				}
				d := time.Since(t0)
				if err != nil || got.SessionToken != want.SessionToken {
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
		return phaseStats{total: total, failures: failures}
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

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
