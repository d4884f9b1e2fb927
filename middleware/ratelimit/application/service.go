package application

import (
	"context"
	"time"

	"quota-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação da admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas produz decisões.
// Now é injetável para testes com relógio determinístico; se nil, usa
// time.Now.
type Service struct {
	Store domain.CounterStore
	Now   func() time.Time
}

// Usable informa se existe store consultável neste momento.
// false significa que toda requisição vai passar sem avaliação.
func (s Service) Usable() bool {
	return s.Store != nil && s.Store.Available()
}

// Decide aplica a política de admissão para key dentro da janela win.
//
// Ordem de curto-circuito:
//  1. store ausente/desconectado -> bypass (fail-open deliberado);
//  2. avaliação normal: um único increment atômico, sem retry;
//  3. falha de operação do store: bypass se tolerateErrors, senão o erro
//     sobe para o chamador decidir (este pacote não escolhe fail-open
//     nem fail-closed nesse caso).
//
// Whitelist não aparece aqui de propósito: o predicado enxerga a
// requisição HTTP, então mora no adapter — que o avalia antes de chamar
// Decide, garantindo que requisição whitelisted nunca toca o store.
func (s Service) Decide(ctx context.Context, key domain.Key, win domain.Window, tolerateErrors bool) (domain.Outcome, error) {
	if !s.Usable() {
		return domain.Outcome{Bypassed: true}, nil
	}

	dec, err := s.Evaluate(ctx, key, win)
	if err != nil {
		if domain.IsStoreUnavailable(err) {
			return domain.Outcome{Bypassed: true}, nil
		}
		if tolerateErrors {
			return domain.Outcome{Bypassed: true}, nil
		}
		return domain.Outcome{}, err
	}

	return domain.Outcome{Decision: dec}, nil
}

// Evaluate executa a avaliação propriamente dita: incrementa o contador
// compartilhado e computa os metadados da janela corrente.
//
// allowed = count <= total, então Total=0 nega toda requisição sem caso
// especial. ResetAt é ceil((agora+ttl)/1s) em segundos epoch — absoluto,
// não relativo, e estável dentro de uma mesma janela.
func (s Service) Evaluate(ctx context.Context, key domain.Key, win domain.Window) (domain.Decision, error) {
	count, ttl, err := s.Store.Increment(ctx, key, win.Duration)
	if err != nil {
		return domain.Decision{}, err
	}

	remaining := win.Total - int(count)
	if remaining < 0 {
		remaining = 0
	}

	deadline := s.now().Add(ttl)

	return domain.Decision{
		Allowed:    count <= int64(win.Total),
		Limit:      win.Total,
		Remaining:  remaining,
		ResetAt:    ceilSeconds(deadline),
		RetryAfter: ttl,
	}, nil
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ceilSeconds converte um instante para segundos epoch arredondando
// para cima qualquer fração de milissegundo.
func ceilSeconds(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms + 999) / 1000
}
