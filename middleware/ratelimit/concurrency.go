package ratelimit

import (
	"net/http"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/infra"
)

type InflightOptions struct {
	// Max de requisições simultâneas. <= 0 desliga o middleware.
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter sugerido na rejeição. 0 omite o header.
	RetryAfter time.Duration
}

// InflightMiddleware limita requisições simultâneas em voo. Companheiro
// do limiter de janela: um segura taxa, o outro segura concorrência.
func InflightMiddleware(opts InflightOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.InflightService{
		Pool:           infra.NewSemaphore(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if opts.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter)))
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
