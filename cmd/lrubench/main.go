// Command lrubench runs a synthetic Zipf workload against the cache and
// exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/scalelru/cache"
	"github.com/IvanBrykalov/scalelru/metrics/prom"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lrubench",
	Short: "Synthetic load generator for the sharded LRU cache",
	Long: `lrubench drives a configurable read/write mix of Zipf-distributed keys
against the cache and reports throughput and hit rate.

Configuration is resolved flag > environment (LRUBENCH_*) > config file.

Examples:
  # 80% reads over a 1M keyspace for 10s
  lrubench --cap 100000 --reads 80 --duration 10s

  # Contended single shard, with pprof and Prometheus endpoints
  lrubench --shards 1 --pprof :6060 --http :8080`,
	RunE: runBench,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lrubench.yaml)")

	rootCmd.Flags().Int("cap", 100_000, "cache capacity (entries)")
	rootCmd.Flags().Int("shards", 0, "number of shards (0 = hardware threads)")
	rootCmd.Flags().Int("stripes", 0, "map stripes per shard (0 = auto)")
	rootCmd.Flags().Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
	rootCmd.Flags().Duration("duration", 10*time.Second, "benchmark duration")
	rootCmd.Flags().Int("reads", 80, "read percentage [0..100]")
	rootCmd.Flags().Int("keys", 1_000_000, "keyspace size")
	rootCmd.Flags().Float64("zipf-s", 1.1, "Zipf s > 1 (skew)")
	rootCmd.Flags().Float64("zipf-v", 1.0, "Zipf v")
	rootCmd.Flags().Int64("seed", time.Now().UnixNano(), "random seed")
	rootCmd.Flags().Int("preload", 0, "preload entries (0 = cap/2)")
	rootCmd.Flags().String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	rootCmd.Flags().String("http", "", "serve Prometheus metrics at addr; empty = disabled")

	// Bind every flag to viper so env/config can override defaults.
	_ = viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("lrubench")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LRUBENCH")
	viper.AutomaticEnv()

	// Read config file (ignore if not found, warn on other errors).
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}
}

func runBench(_ *cobra.Command, _ []string) error {
	var (
		capacity = viper.GetInt("cap")
		shards   = viper.GetInt("shards")
		stripes  = viper.GetInt("stripes")
		workers  = viper.GetInt("workers")
		duration = viper.GetDuration("duration")
		readPct  = viper.GetInt("reads")
		keys     = viper.GetInt("keys")
		zipfS    = viper.GetFloat64("zipf-s")
		zipfV    = viper.GetFloat64("zipf-v")
		seed     = viper.GetInt64("seed")
		preload  = viper.GetInt("preload")
	)

	// ---- pprof server (on DefaultServeMux) ----
	if addr := viper.GetString("pprof"); addr != "" {
		go func() {
			log.Printf("pprof: serving at %s", addr)
			log.Println(http.ListenAndServe(addr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	var metrics cache.Metrics
	if addr := viper.GetString("http"); addr != "" {
		metrics = prom.New(nil, "scalelru", "bench", nil)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", addr)
			log.Println(http.ListenAndServe(addr, nil))
		}()
	}

	// ---- Build cache ----
	c := cache.New[string, string](cache.Options[string, string]{
		Capacity: capacity,
		Shards:   shards,
		Stripes:  stripes,
		Metrics:  metrics,
	})
	defer func() { _ = c.Close() }()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := preload
	if pl == 0 {
		pl = capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		c.Add(k, "v"+strconv.Itoa(i))
	}

	if workers <= 0 {
		workers = 1
	}
	keysMax := uint64(keys - 1)

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfS, zipfV, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPct {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					if !c.Add(k, "v"+strconv.Itoa(localR.Int())) {
						// duplicate: treat as touch, keeps the mix honest
						c.Get(k)
					}
				}
			}
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		c.Capacity(), c.ShardCount(), workers, keys, elapsed, seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Len()=%d\n", c.Len())
	return nil
}
