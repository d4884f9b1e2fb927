package infra

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"quota-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript faz increment+expire em um passo atômico:
//   - chave nova nasce com 1 e ganha PEXPIRE da janela inteira;
//   - chave viva só incrementa, o TTL corrente NÃO é tocado;
//   - PTTL < 0 (chave sem TTL, ex: restaurada de um dump) recebe a
//     janela de novo em vez de viver para sempre.
//
// Devolve {count, ttl_ms}.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  return {count, tonumber(ARGV[1])}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounterStore implementa domain.CounterStore sobre Redis.
//
// A disponibilidade é mantida por uma sonda periódica (StartHealthProbe)
// que faz PING e vira uma flag atômica; Available() só lê a flag, sem
// custo de rede no caminho da requisição.
type RedisCounterStore struct {
	rdb *redis.Client

	prefix string

	available    atomic.Bool
	probeEvery   time.Duration
	probeTimeout time.Duration
}

type RedisOption func(*RedisCounterStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithProbeEvery(d time.Duration) RedisOption {
	return func(s *RedisCounterStore) { s.probeEvery = d }
}

func WithProbeTimeout(d time.Duration) RedisOption {
	return func(s *RedisCounterStore) { s.probeTimeout = d }
}

func NewRedisCounterStore(rdb *redis.Client, opts ...RedisOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:          rdb,
		probeEvery:   5 * time.Second,
		probeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Sem sonda rodando, um cliente configurado é considerado conectado
	// e falhas aparecem como StoreError na operação.
	s.available.Store(rdb != nil)
	return s
}

// Available implementa domain.CounterStore.
func (s *RedisCounterStore) Available() bool {
	return s != nil && s.rdb != nil && s.available.Load()
}

// Increment implementa domain.CounterStore.
func (s *RedisCounterStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (int64, time.Duration, error) {
	if s == nil || s.rdb == nil {
		return 0, 0, domain.ErrStoreUnavailable
	}

	k := string(key)
	if s.prefix != "" {
		k = s.prefix + ":" + k
	}

	res, err := incrWindowScript.Run(ctx, s.rdb, []string{k}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, &domain.StoreError{Op: "increment", Key: key, Err: err}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, &domain.StoreError{Op: "increment", Key: key, Err: fmt.Errorf("unexpected script reply %T", res)}
	}
	count, ok1 := vals[0].(int64)
	ttlMs, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, &domain.StoreError{Op: "increment", Key: key, Err: fmt.Errorf("unexpected script reply %v", vals)}
	}

	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// Ping verifica a conexão uma vez e atualiza a flag de disponibilidade.
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return domain.ErrStoreUnavailable
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	err := s.rdb.Ping(pingCtx).Err()
	s.available.Store(err == nil)
	return err
}

// StartHealthProbe inicia uma goroutine que faz PING periódico e mantém
// a flag de disponibilidade. Pare cancelando o contexto.
//
// Enquanto a flag está em false o limiter inteiro opera em bypass
// (fail-open); a sonda religando o Redis religa a admissão sozinha.
func (s *RedisCounterStore) StartHealthProbe(ctx context.Context) {
	if s == nil || s.rdb == nil || s.probeEvery <= 0 {
		return
	}

	t := time.NewTicker(s.probeEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = s.Ping(ctx)
			}
		}
	}()
}
