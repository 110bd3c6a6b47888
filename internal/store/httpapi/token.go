package httpapi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTokenIssuer is a simple in-memory TokenIssuer: any login against
// the configured password mints a fresh opaque token good for ttl.
type MemoryTokenIssuer struct {
	password string
	ttl      time.Duration

	mu     sync.Mutex
	tokens map[string]time.Time
}

func NewMemoryTokenIssuer(password string, ttl time.Duration) *MemoryTokenIssuer {
	return &MemoryTokenIssuer{password: password, ttl: ttl, tokens: make(map[string]time.Time)}
}

func (m *MemoryTokenIssuer) Login(password string) (string, time.Time, error) {
	if m.password != "" && password != m.password {
		return "", time.Time{}, errWrongPassword
	}
	token := uuid.NewString()
	expiresAt := time.Now().Add(m.ttl)

	m.mu.Lock()
	m.tokens[token] = expiresAt
	m.mu.Unlock()

	return token, expiresAt, nil
}

func (m *MemoryTokenIssuer) Verify(token string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.tokens[token]
	return expiresAt, ok
}

var errWrongPassword = errors.New("httpapi: wrong password")
