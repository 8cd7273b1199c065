package sshsession

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// SessionPool keeps sessions open across sequential operations, keyed by
// their connection parameters. Get for a config whose session is already
// pooled returns that same *Session, so a pool is not a source of
// parallelism for one target: concurrent work against the same host needs
// independently opened sessions (as Mirror.Push does), not pooled ones.
type SessionPool struct {
	mu        sync.RWMutex
	sessions  map[string]*pooledSession
	maxIdle   time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

type pooledSession struct {
	session  *Session
	lastUsed time.Time
	inUse    int // reference count
}

// NewSessionPool creates a new session pool.
// maxIdle specifies how long idle sessions are kept before being closed.
func NewSessionPool(maxIdle time.Duration) *SessionPool {
	pool := &SessionPool{
		sessions: make(map[string]*pooledSession),
		maxIdle:  maxIdle,
		done:     make(chan struct{}),
	}

	go pool.reapLoop()

	return pool
}

// Get returns an existing healthy session for the config or opens a new one.
// The caller must call Release when done with the session.
func (p *SessionPool) Get(config Config) (*Session, error) {
	config = config.WithDefaults()
	key := p.sessionKey(config)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ps, ok := p.sessions[key]; ok {
		if ps.session.Alive() {
			ps.inUse++
			ps.lastUsed = time.Now()
			return ps.session, nil
		}
		_ = ps.session.Close()
		delete(p.sessions, key)
	}

	session, err := Open(config)
	if err != nil {
		return nil, err
	}

	p.sessions[key] = &pooledSession{
		session:  session,
		lastUsed: time.Now(),
		inUse:    1,
	}

	return session, nil
}

// Release returns a session to the pool.
func (p *SessionPool) Release(config Config) {
	key := p.sessionKey(config.WithDefaults())

	p.mu.Lock()
	defer p.mu.Unlock()

	if ps, ok := p.sessions[key]; ok {
		ps.inUse--
		if ps.inUse < 0 {
			ps.inUse = 0
		}
		ps.lastUsed = time.Now()
	}
}

// Close closes all sessions in the pool and stops the reaper goroutine.
// It is safe to call more than once.
func (p *SessionPool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, ps := range p.sessions {
		_ = ps.session.Close()
		delete(p.sessions, key)
	}
}

// CloseIdle closes sessions that have been idle for longer than maxIdle.
func (p *SessionPool) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for key, ps := range p.sessions {
		if ps.inUse == 0 && now.Sub(ps.lastUsed) > p.maxIdle {
			_ = ps.session.Close()
			delete(p.sessions, key)
		}
	}
}

// Stats returns current pool statistics.
func (p *SessionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var inUse, idle int
	for _, ps := range p.sessions {
		if ps.inUse > 0 {
			inUse++
		} else {
			idle++
		}
	}

	return PoolStats{
		Total: len(p.sessions),
		InUse: inUse,
		Idle:  idle,
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Total int
	InUse int
	Idle  int
}

func (p *SessionPool) sessionKey(config Config) string {
	h := sha256.New()

	h.Write([]byte(config.Host))
	fmt.Fprintf(h, ":%d:", config.Port)
	h.Write([]byte(config.User))

	if config.Password != "" {
		h.Write([]byte(":password:"))
		h.Write([]byte(config.Password))
	}
	if config.PrivateKey != "" {
		h.Write([]byte(":key:"))
		h.Write([]byte(config.PrivateKey))
	}
	if config.KeyPath != "" {
		h.Write([]byte(":keypath:"))
		h.Write([]byte(config.KeyPath))
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (p *SessionPool) reapLoop() {
	interval := p.maxIdle / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.CloseIdle()
		case <-p.done:
			return
		}
	}
}
