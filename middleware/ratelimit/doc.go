// Package ratelimit fornece adapters HTTP (net/http) para admissão de
// requisições por janela fixa e limite de requisições em voo.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny + bypass) sem net/http
//   - infra: implementações concretas (contador no Redis ou em memória,
//     semáforo), detalhes de infraestrutura
//   - ratelimit (este pacote): fábrica de middlewares + registro de rotas
//     + tradução da decisão para status/headers
//
// Fluxo por requisição:
//
//  1. Handler consulta o registro de rotas (ou o middleware direct-mount
//     casa sempre)
//  2. Política de bypass: store ausente/desconectado ou whitelist liberam
//     sem avaliação e sem metadados
//  3. Um único increment atômico no store compartilhado decide
//     allow/deny e os metadados da janela
//  4. Resposta anotada com X-RateLimit-Limit/-Remaining/-Reset; rejeição
//     responde 429 com Retry-After e o próximo handler não roda
//
// O binário gateway (cmd/gateway) liga tudo via variáveis de ambiente,
// como RATE_ROUTES, REDIS_ADDR e INFLIGHT_MAX.
package ratelimit
