// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: contador por janela fixa no Redis, com
//     increment+expire atômico via script Lua
//   - MemoryCounterStore: contador em memória com relógio injetável,
//     para testes e desenvolvimento
//   - NewSemaphore: pool simples para limite de requisições em voo
package infra
