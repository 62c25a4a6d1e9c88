package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"stoyanka/internal/config"

	"golang.org/x/time/rate"
)

// HTTPAuth validates client API keys and enforces a per-key rate limit.
type HTTPAuth struct {
	cfg config.APIConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health and websocket upgrade paths are checked by their handlers
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if !a.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
		extra := r.Header.Get(a.cfg.Auth.HeaderExtra)
		client, ok := a.match(key, extra)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !a.allow(client.Name) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match ищет ключ клиента; сравнение за постоянное время, чтобы не
// подсказывать длину и префикс ключа таймингом ответа.
func (a *HTTPAuth) match(key, extra string) (config.APIClientKey, bool) {
	for _, client := range a.cfg.Auth.APIKeys {
		keyOK := subtle.ConstantTimeCompare([]byte(client.Key), []byte(key)) == 1
		extraOK := client.Extra == "" || subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) == 1
		if keyOK && extraOK {
			return client, true
		}
	}
	return config.APIClientKey{}, false
}

func (a *HTTPAuth) allow(clientName string) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}

	a.mu.Lock()
	limiter, ok := a.limiters[clientName]
	if !ok {
		burst := a.cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
		a.limiters[clientName] = limiter
	}
	a.mu.Unlock()

	return limiter.Allow()
}
