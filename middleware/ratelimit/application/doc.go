// Package application contém os casos de uso (regras de aplicação) da
// admissão por janela fixa e do limite de requisições em voo.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(ctx, key, win, tolera) retorna um Outcome
// (decisão allow/deny + metadados, ou bypass).
package application
