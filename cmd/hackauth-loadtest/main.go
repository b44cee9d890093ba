// Command hackauth-loadtest measures session lookups and refresh rotations
// against Redis and checks that concurrent rotations of one token have a
// single winner. Without -redis-addr or REDIS_ADDR it runs on miniredis.
package main

import (
	"context"
	"errors"
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

	"github.com/hackforge/hackauth/fingerprint"
	"github.com/hackforge/hackauth/internal"
	"github.com/hackforge/hackauth/session"
)

const sessionTTL = 24 * time.Hour

type sessionState struct {
	sid     string
	account string
	token   string
	mu      sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (lookup + refresh)")
		races       = flag.Int("races", 200, "sessions refreshed concurrently with the same token")
		racers      = flag.Int("racers", 16, "concurrent refreshes per raced session")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "hackauth-loadtest:", "key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var cleanup func()
	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store := session.NewStore(client, *prefix)

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	states, err := seed(ctx, store, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	lookupStats := runLookupPhase(ctx, store, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, store, states, *ops, *concurrency)
	winners, violations := runRacePhase(ctx, store, *races, *racers)

	fmt.Println("---- results ----")
	printStats("lookup", lookupStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: sessions=%d racers=%d single-winner=%d violations=%d\n", *races, *racers, winners, violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, store *session.Store, n int) ([]*sessionState, error) {
	states := make([]*sessionState, n)
	for i := 0; i < n; i++ {
		st, err := newSession(ctx, store, fmt.Sprintf("acct-%d", i%1000))
		if err != nil {
			return nil, err
		}
		states[i] = st
	}
	return states, nil
}

func newSession(ctx context.Context, store *session.Store, accountID string) (*sessionState, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sid := id.String()
	token, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &session.Session{
		ID:          sid,
		AccountID:   accountID,
		CreatedAt:   now,
		RenewedAt:   now,
		ExpiresAt:   now.Add(sessionTTL),
		RefreshHash: internal.HashToken(token),
		Fingerprint: fingerprint.Fingerprint{IPAddress: "198.51.100.1", DeviceType: fingerprint.DeviceDesktop},
	}
	if err := store.Save(ctx, sess, sessionTTL); err != nil {
		return nil, err
	}
	return &sessionState{sid: sid, account: accountID, token: token}, nil
}

func runLookupPhase(ctx context.Context, store *session.Store, states []*sessionState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) (time.Duration, error) {
		st := states[r.Intn(len(states))]
		t0 := time.Now()
		_, err := store.Get(ctx, st.sid)
		return time.Since(t0), err
	})
}

func runRefreshPhase(ctx context.Context, store *session.Store, states []*sessionState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) (time.Duration, error) {
		st := states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()

		next, err := internal.NewRefreshToken()
		if err != nil {
			return 0, err
		}
		t0 := time.Now()
		_, err = store.Rotate(ctx, st.sid, st.account, internal.HashToken(st.token), internal.HashToken(next), sessionTTL)
		d := time.Since(t0)
		if err == nil {
			st.token = next
		}
		return d, err
	})
}

func runPhase(ops, concurrency int, seedSalt int64, op func(r *rand.Rand, i int) (time.Duration, error)) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				d, err := op(r, i)
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

// runRacePhase rotates each fresh session from racers goroutines at once with
// the same presented token. Exactly one must win; the rest must see a
// mismatch or a missing session.
func runRacePhase(ctx context.Context, store *session.Store, sessions, racers int) (winners, violations int) {
	for i := 0; i < sessions; i++ {
		st, err := newSession(ctx, store, "race-acct")
		if err != nil {
			fmt.Fprintf(os.Stderr, "race seed failed: %v\n", err)
			violations++
			continue
		}

		var wg sync.WaitGroup
		var wins, unexpected int64
		presented := internal.HashToken(st.token)
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, err := internal.NewRefreshToken()
				if err != nil {
					atomic.AddInt64(&unexpected, 1)
					return
				}
				_, err = store.Rotate(ctx, st.sid, st.account, presented, internal.HashToken(next), sessionTTL)
				var mismatch *session.MismatchError
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case errors.As(err, &mismatch), errors.Is(err, session.ErrNotFound):
				default:
					atomic.AddInt64(&unexpected, 1)
				}
			}()
		}
		wg.Wait()

		if wins == 1 && unexpected == 0 {
			winners++
		} else {
			violations++
		}
	}
	return winners, violations
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
