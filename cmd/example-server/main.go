package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quota-gateway/middleware/ratelimit"
	"quota-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: montando o limiter diretamente nas rotas do seu webserver
	// (modo direct-mount, sem proxy e sem Redis).
	store := infra.NewMemoryCounterStore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	limiter := ratelimit.New(ratelimit.Options{Store: store})

	// Cada Register devolve um middleware independente com seu próprio
	// contador. Sem Path/Method toda chamada conta.
	searchLimit, err := limiter.Register(ratelimit.Route{
		Name:   "search",
		Total:  10,
		Window: 1 * time.Minute,
	})
	if err != nil {
		log.Fatalf("register search: %v", err)
	}

	loginLimit, err := limiter.Register(ratelimit.Route{
		Name:   "login",
		Total:  3,
		Window: 1 * time.Minute,
	})
	if err != nil {
		log.Fatalf("register login: %v", err)
	}

	r := chi.NewRouter()
	r.Use(ratelimit.InflightMiddleware(ratelimit.InflightOptions{Max: 50}))

	r.With(searchLimit).Get("/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("results\n"))
	})
	r.With(loginLimit).Post("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("welcome\n"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
