package ratelimit

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"quota-gateway/middleware/ratelimit/application"
	"quota-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Options configura um Limiter. Store pode ser nil: nesse caso o limiter
// vira um no-op transparente (toda requisição passa, sem metadados) —
// escolha deliberada para o serviço protegido degradar para "ilimitado"
// em vez de derrubar o pipeline quando a dependência falta.
type Options struct {
	Store domain.CounterStore
	Stats domain.StatsStore

	// Clock é injetável para testes. nil usa time.Now.
	Clock func() time.Time

	// ErrorHandler responde requisições cuja admissão falhou de forma
	// fatal (erro de store sem IgnoreStoreErrors). nil responde 500.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// ErrorLog recebe erros de store (com supressão de repetição).
	// nil usa o logger padrão do pacote log.
	ErrorLog *log.Logger
}

// Route é a configuração imutável de uma rota limitada.
//
// Com Path e Method presentes a rota entra no registro e é interceptada
// automaticamente por Handler (modo filtrado). Com ambos ausentes,
// Register devolve um middleware que o chamador monta explicitamente em
// um handler (modo direct-mount) e toda chamada conta.
type Route struct {
	Path   string
	Method string

	// Name substitui a identidade automática no modo direct-mount,
	// para quem precisa de chave estável independente da ordem de
	// registro.
	Name string

	// Total de requisições permitidas por janela. Zero é válido e nega
	// todas.
	Total  int
	Window time.Duration

	// SkipHeaders suprime os quatro metadados de cota, inclusive na
	// rejeição — só o status reflete a decisão.
	SkipHeaders bool

	// IgnoreStoreErrors libera a requisição (sem metadados) quando a
	// operação do store falha, em vez de tratar como falha fatal.
	IgnoreStoreErrors bool

	// Whitelist, quando retorna true, libera a requisição sem nenhuma
	// avaliação — o store nem é consultado.
	Whitelist func(r *http.Request) bool

	// KeyFn anexa um discriminador de cliente à chave da rota.
	// nil mantém um contador único por rota.
	KeyFn KeyFunc
}

// Limiter é a fábrica de middlewares de admissão. Registre rotas com
// Register e intercepte o pipeline com Handler.
type Limiter struct {
	svc          application.Service
	stats        domain.StatsStore
	errorHandler func(w http.ResponseWriter, r *http.Request, err error)
	errLog       *log.Logger
	// suprime repetição de log quando o store está falhando em todas
	// as requisições.
	errEvery rate.Sometimes

	mu         sync.RWMutex
	routes     map[string]*boundRoute
	handlerSeq int
}

// boundRoute congela a configuração junto com a chave e a janela já
// resolvidas no registro.
type boundRoute struct {
	cfg Route
	key domain.Key
	win domain.Window
}

func New(opts Options) *Limiter {
	errorHandler := opts.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
	errLog := opts.ErrorLog
	if errLog == nil {
		errLog = log.Default()
	}

	return &Limiter{
		svc:          application.Service{Store: opts.Store, Now: opts.Clock},
		stats:        opts.Stats,
		errorHandler: errorHandler,
		errLog:       errLog,
		errEvery:     rate.Sometimes{First: 1, Interval: 10 * time.Second},
		routes:       make(map[string]*boundRoute),
	}
}

// Register valida e registra uma rota.
//
// Modo filtrado (Path e Method presentes): a rota passa a ser casada
// automaticamente por Handler e o retorno é nil — não há middleware para
// montar. Modo direct-mount (ambos ausentes): devolve o middleware a ser
// inserido na cadeia do handler desejado.
//
// Erros de configuração (total negativo, janela não positiva, filtro
// parcial, rota duplicada) aparecem aqui, antes de qualquer requisição.
func (l *Limiter) Register(cfg Route) (func(http.Handler) http.Handler, error) {
	if cfg.Total < 0 {
		return nil, domain.ErrInvalidRoute
	}
	if cfg.Window <= 0 {
		return nil, domain.ErrInvalidRoute
	}

	hasPath := strings.TrimSpace(cfg.Path) != ""
	hasMethod := strings.TrimSpace(cfg.Method) != ""

	if hasPath != hasMethod {
		// filtro parcial: não dá para adivinhar o modo.
		return nil, domain.ErrInvalidRoute
	}

	win := domain.Window{Total: cfg.Total, Duration: cfg.Window}

	if hasPath {
		method := strings.ToUpper(strings.TrimSpace(cfg.Method))
		path := strings.TrimSpace(cfg.Path)
		id := method + " " + path

		l.mu.Lock()
		defer l.mu.Unlock()

		if _, dup := l.routes[id]; dup {
			return nil, domain.ErrInvalidRoute
		}
		l.routes[id] = &boundRoute{cfg: cfg, key: routeKey(method, path), win: win}
		return nil, nil
	}

	l.mu.Lock()
	l.handlerSeq++
	name := cfg.Name
	if name == "" {
		name = strconv.Itoa(l.handlerSeq)
	}
	l.mu.Unlock()

	b := &boundRoute{cfg: cfg, key: handlerKey(name), win: win}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.admit(b, next, w, r)
		})
	}, nil
}

// Handler intercepta a entrada do pipeline e aplica admissão às rotas
// registradas no modo filtrado. Requisições que não casam com nenhuma
// rota passam direto, invisíveis ao limiter (nem bypass conta).
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.RLock()
		b := l.routes[strings.ToUpper(r.Method)+" "+r.URL.Path]
		l.mu.RUnlock()

		if b == nil {
			next.ServeHTTP(w, r)
			return
		}
		l.admit(b, next, w, r)
	})
}

// admit executa o pipeline de política por requisição:
// store inutilizável -> whitelist -> avaliação -> anotação da resposta.
func (l *Limiter) admit(b *boundRoute, next http.Handler, w http.ResponseWriter, r *http.Request) {
	if !l.svc.Usable() {
		l.record(r, b.key, domain.Outcome{Bypassed: true})
		next.ServeHTTP(w, r)
		return
	}

	// whitelist libera sem consultar o store: vale mesmo com o store
	// quebrado.
	if b.cfg.Whitelist != nil && b.cfg.Whitelist(r) {
		l.record(r, b.key, domain.Outcome{Bypassed: true})
		next.ServeHTTP(w, r)
		return
	}

	key := b.key
	if b.cfg.KeyFn != nil {
		if v := b.cfg.KeyFn(r); v != "" {
			key += domain.Key(":" + v)
		}
	}

	out, err := l.svc.Decide(r.Context(), key, b.win, b.cfg.IgnoreStoreErrors)
	if err != nil {
		l.errEvery.Do(func() {
			l.errLog.Printf("ratelimit: admission failed: %v", err)
		})
		l.errorHandler(w, r, err)
		return
	}

	l.record(r, key, out)

	if out.Bypassed {
		next.ServeHTTP(w, r)
		return
	}

	dec := out.Decision
	if !b.cfg.SkipHeaders {
		h := w.Header()
		h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
		h.Set("X-RateLimit-Reset", formatInt64(dec.ResetAt))
	}

	if !dec.Allowed {
		if !b.cfg.SkipHeaders {
			w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
		}
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	next.ServeHTTP(w, r)
}

func (l *Limiter) record(r *http.Request, key domain.Key, out domain.Outcome) {
	if l.stats == nil {
		return
	}
	_ = l.stats.Record(r.Context(), domain.Event{
		Key:      key,
		Allowed:  out.Bypassed || out.Decision.Allowed,
		Bypassed: out.Bypassed,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       time.Now(),
	})
}
