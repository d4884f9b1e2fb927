package domain

import (
	"context"
	"time"
)

// Event representa o resultado da admissão de uma requisição.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings
// genéricas. Bypassed marca requisições que passaram sem avaliação
// (store ausente, whitelist, erro tolerado) — útil para enxergar quando
// o limiter está operando em modo transparente.
//
// Observação: cuidado com cardinalidade ao gravar Key/Path sem controle
// em uma base como Redis.
type Event struct {
	Key      Key
	Allowed  bool
	Bypassed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc. O middleware
// trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev Event) error
}
