// utilitário pequeno para formatação rápida/consistente de valores
// numéricos em headers. Evita puxar fmt (mais pesado e genérico) só para
// formatação simples e padroniza a saída decimal.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// retryAfterSeconds converte o tempo até o reset em segundos inteiros,
// arredondando para cima e nunca abaixo de 1 — Retry-After precisa ser
// um inteiro positivo mesmo no último milissegundo da janela.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
