package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"quota-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai um discriminador de cliente da requisição. Quando
// configurado na rota, o valor é anexado à chave da rota, fazendo o
// contador valer por cliente em vez de um contador único por rota.
type KeyFunc func(r *http.Request) string

// routeKey deriva a chave do contador a partir da identidade da rota.
// Determinística: toda requisição que casa com a mesma rota divide o
// mesmo contador dentro da mesma janela.
func routeKey(method, path string) domain.Key {
	return domain.Key("ratelimit:route:" + strings.ToUpper(method) + ":" + path)
}

// handlerKey deriva a chave de um handler montado diretamente (modo
// direct-mount, sem filtro de path/method).
func handlerKey(name string) domain.Key {
	return domain.Key("ratelimit:handler:" + name)
}

// ClientKeyFunc devolve um KeyFunc que identifica o cliente por header
// dedicado, X-Forwarded-For (se confiável) ou RemoteAddr, nessa ordem.
func ClientKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
