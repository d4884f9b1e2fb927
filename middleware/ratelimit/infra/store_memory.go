package infra

import (
	"context"
	"sync"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma implementação de domain.CounterStore em
// memória: mapa por chave com contagem e instante de expiração.
//
// Serve para testes (relógio injetável) e para rodar o gateway sem Redis.
// Os contadores são locais ao processo — em um deploy com múltiplas
// réplicas cada uma conta a sua parte.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryOption func(*MemoryCounterStore)

// WithClock troca a fonte de tempo. Usado nos testes para simular o
// avanço da janela sem dormir.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[domain.Key]*counterEntry),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available implementa domain.CounterStore. Memória local está sempre
// disponível.
func (s *MemoryCounterStore) Available() bool { return s != nil }

// Increment implementa domain.CounterStore.
//
// Chave ausente ou expirada renasce com count=1 e TTL = window inteira;
// chave viva incrementa sem tocar o TTL em andamento.
func (s *MemoryCounterStore) Increment(_ context.Context, key domain.Key, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !ent.expiresAt.After(now) {
		ent = &counterEntry{count: 1, expiresAt: now.Add(window)}
		s.entries[key] = ent
		return 1, window, nil
	}

	ent.count++
	return ent.count, ent.expiresAt.Sub(now), nil
}

// Cleanup remove entradas já expiradas. O Increment já ignora entradas
// vencidas, então isso é só para devolver memória.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !ent.expiresAt.After(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas
// periodicamente. Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem
// acoplar a assinatura. (Permite reuso em libs.)
type DoneContext interface {
	Done() <-chan struct{}
}
