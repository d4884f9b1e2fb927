package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quota-gateway/middleware/ratelimit"
	"quota-gateway/middleware/ratelimit/domain"
	"quota-gateway/middleware/ratelimit/infra"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store domain.CounterStore
	var rdb *redis.Client

	switch cfg.store {
	case "redis":
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		defer func() { _ = rdb.Close() }()

		rs := infra.NewRedisCounterStore(rdb,
			infra.WithProbeEvery(cfg.probeEvery),
			infra.WithProbeTimeout(cfg.probeTimeout),
		)
		// Ping inicial só loga: Redis fora do ar na subida não derruba o
		// gateway, o limiter opera em bypass até a sonda religar.
		if err := rs.Ping(ctx); err != nil {
			log.Printf("redis unreachable, limiter starts in bypass: %v", err)
		}
		rs.StartHealthProbe(ctx)
		store = rs
	case "memory":
		ms := infra.NewMemoryCounterStore()
		ms.StartJanitor(ctx)
		store = ms
	case "none":
		// store nil: limiter vira no-op transparente.
	default:
		log.Fatalf("unsupported STORE: %q", cfg.store)
	}

	var statsStore domain.StatsStore
	if cfg.statsEnabled {
		if rdb == nil {
			log.Fatalf("RATE_STATS_ENABLED requires STORE=redis")
		}
		statsStore = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	}

	limiter := ratelimit.New(ratelimit.Options{
		Store: store,
		Stats: statsStore,
	})

	var keyFn ratelimit.KeyFunc
	if cfg.perClient {
		keyFn = ratelimit.ClientKeyFunc(cfg.keyHeader, cfg.trustXFF)
	}
	whitelist := whitelistFunc(cfg.whitelistIPs, cfg.trustXFF)

	for _, rule := range cfg.routes {
		_, err := limiter.Register(ratelimit.Route{
			Path:              rule.path,
			Method:            rule.method,
			Total:             rule.total,
			Window:            rule.window,
			SkipHeaders:       cfg.skipHeaders,
			IgnoreStoreErrors: cfg.ignoreStoreErrors,
			Whitelist:         whitelist,
			KeyFn:             keyFn,
		})
		if err != nil {
			log.Fatalf("register route %s %s: %v", rule.method, rule.path, err)
		}
	}

	h := http.Handler(proxy)
	h = ratelimit.InflightMiddleware(ratelimit.InflightOptions{
		Max:            cfg.inflightMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.inflightTimeout,
		RetryAfter:     cfg.inflightRetryAfter,
	})(h)
	h = limiter.Handler(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("store=%s routes=%d skipHeaders=%v ignoreStoreErrors=%v perClient=%v", cfg.store, len(cfg.routes), cfg.skipHeaders, cfg.ignoreStoreErrors, cfg.perClient)
	log.Printf("inflight: max=%d acquireTimeout=%s", cfg.inflightMax, cfg.inflightTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type routeRule struct {
	method string
	path   string
	total  int
	window time.Duration
}

type config struct {
	listenAddr  string
	upstreamURL string

	store         string
	redisAddr     string
	redisPassword string
	redisDB       int
	probeEvery    time.Duration
	probeTimeout  time.Duration

	routes            []routeRule
	skipHeaders       bool
	ignoreStoreErrors bool
	whitelistIPs      []string

	perClient bool
	keyHeader string
	trustXFF  bool

	inflightMax        int
	inflightTimeout    time.Duration
	inflightRetryAfter time.Duration

	statsEnabled   bool
	statsPrefix    string
	statsTTL       time.Duration
	statsBucket    string
	statsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.store = strings.ToLower(getenvDefault("STORE", "redis"))
	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.probeEvery = getenvDurationDefault("REDIS_PROBE_EVERY", 5*time.Second)
	cfg.probeTimeout = getenvDurationDefault("REDIS_PROBE_TIMEOUT", 2*time.Second)

	routes, err := parseRoutes(os.Getenv("RATE_ROUTES"))
	if err != nil {
		return config{}, err
	}
	cfg.routes = routes

	cfg.skipHeaders = getenvBoolDefault("RATE_SKIP_HEADERS", false)
	cfg.ignoreStoreErrors = getenvBoolDefault("RATE_IGNORE_STORE_ERRORS", false)
	cfg.whitelistIPs = splitList(os.Getenv("RATE_WHITELIST_IPS"))

	cfg.perClient = getenvBoolDefault("RATE_PER_CLIENT", false)
	cfg.keyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)

	cfg.inflightMax = getenvIntDefault("INFLIGHT_MAX", 100)
	cfg.inflightTimeout = getenvDurationDefault("INFLIGHT_TIMEOUT", 0)
	cfg.inflightRetryAfter = getenvDurationDefault("INFLIGHT_RETRY_AFTER", 1*time.Second)

	cfg.statsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.statsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.statsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if len(cfg.routes) == 0 {
		return config{}, errors.New("RATE_ROUTES is required (ex: \"GET /api:100:1m,POST /login:5:1m\")")
	}
	if cfg.inflightMax < 0 {
		return config{}, errors.New("INFLIGHT_MAX must be >= 0")
	}
	return cfg, nil
}

// parseRoutes lê a lista "METHOD PATH:TOTAL:WINDOW" separada por vírgula.
// WINDOW usa a sintaxe de time.ParseDuration (ex: 500ms, 1m, 1h).
func parseRoutes(raw string) ([]routeRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var rules []routeRule
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("route rule must follow \"METHOD PATH:TOTAL:WINDOW\": %q", item)
		}

		mp := strings.Fields(parts[0])
		if len(mp) != 2 {
			return nil, fmt.Errorf("route rule must start with \"METHOD PATH\": %q", item)
		}

		total, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid total in %q: %w", item, err)
		}
		window, err := time.ParseDuration(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid window in %q: %w", item, err)
		}

		rules = append(rules, routeRule{
			method: strings.ToUpper(mp[0]),
			path:   mp[1],
			total:  total,
			window: window,
		})
	}
	return rules, nil
}

// whitelistFunc monta o predicado de whitelist por IP do cliente.
// Lista vazia desliga a whitelist.
func whitelistFunc(ips []string, trustXFF bool) func(r *http.Request) bool {
	if len(ips) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}

	clientIP := ratelimit.ClientKeyFunc("", trustXFF)
	return func(r *http.Request) bool {
		_, ok := set[clientIP(r)]
		return ok
	}
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "t", "true", "y", "yes", "on":
		return true
	case "0", "f", "false", "n", "no", "off":
		return false
	}
	return def
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
