package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable indica que não há cliente de store utilizável:
	// nenhum configurado, ou o configurado se reporta desconectado.
	// A política trata como bypass (fail-open), nunca como erro fatal.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrInvalidRoute indica configuração de rota inválida no registro
	// (total negativo, janela não positiva, filtro parcial). Aparece
	// antes de qualquer requisição ser processada.
	ErrInvalidRoute = errors.New("invalid route configuration")
)

// StoreError embala uma falha da operação do store com cliente conectado
// (rede, protocolo). É distinto de ErrStoreUnavailable porque a política
// trata os dois de formas diferentes: indisponível sempre libera;
// StoreError só libera quando a rota tolera erros.
type StoreError struct {
	Op  string
	Key Key
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("counter store %s %q: %v", e.Op, string(e.Key), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
