package domain

// Camada de domínio do rate limit por janela fixa.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Window descreve a cota efetiva de uma rota: quantas requisições (Total)
// cabem em cada janela de duração Duration.
type Window struct {
	Total    int
	Duration time.Duration
}

// CounterStore é o contrato do armazenamento compartilhado de contadores.
//
// Increment incrementa atomicamente o contador de key e devolve o novo
// valor junto com o tempo restante da janela corrente. Se a chave não
// existe (nunca criada ou expirada), o contador (re)nasce em 1 com
// TTL = window e o ttl devolvido é a janela inteira; se já existe, o TTL
// em andamento NÃO é tocado e o ttl devolvido é o que resta dele.
//
// A atomicidade de increment+expire é responsabilidade do store (ex:
// script Lua no Redis); esta camada nunca tenta compensar ou repetir.
//
// Erros: ErrStoreUnavailable quando não há cliente utilizável; *StoreError
// quando a operação em si falhou (rede, protocolo). Ver errors.go.
type CounterStore interface {
	Increment(ctx context.Context, key Key, window time.Duration) (count int64, ttl time.Duration, err error)

	// Available informa se o store pode ser consultado agora.
	// false equivale a "desconectado": a política trata como bypass.
	Available() bool
}

// Decision é o resultado de avaliar UMA requisição contra a janela corrente.
//
// ResetAt é o instante absoluto de reset em segundos epoch, arredondado
// para CIMA — não é uma contagem regressiva. RetryAfter é o tempo até o
// reset, usado apenas quando Allowed=false.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    int64
	RetryAfter time.Duration
}

// Outcome embala a decisão junto com a marca de bypass. Quando Bypassed
// é true não houve avaliação nenhuma (store ausente, whitelist, erro
// tolerado) e Decision não carrega informação.
type Outcome struct {
	Bypassed bool
	Decision Decision
}

// SlotPool representa um recurso com capacidade finita (ex: requisições
// em voo simultâneas).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Ao
// adquirir, retorna uma função de release que deve ser chamada exatamente
// uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
