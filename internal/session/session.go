// Package session holds the connection to the remote service and the
// signed-in member for one profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"community-portal/internal/auth"
	"community-portal/internal/credential"
	"community-portal/internal/ready"
	"community-portal/internal/remote"
)

var (
	ErrNoService  = errors.New("remote service not connected")
	ErrNoIdentity = errors.New("no signed-in member")
)

// Handle is what view controllers wait for: a connected service and the
// member it acts for.
type Handle struct {
	Service  remote.Service
	Identity auth.Identity
}

// tokenSetter is implemented by services that authenticate each request.
type tokenSetter interface {
	SetAccessToken(token string)
}

// Context is the explicit replacement for process-wide globals. It is safe
// for concurrent use.
type Context struct {
	svc    remote.Service
	tokens credential.TokenCache
	secret string
	log    *log.Logger

	mu        sync.RWMutex
	connected bool
	identity  *auth.Identity
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a context for svc. Nothing is usable until Connect succeeds
// and a member is signed in.
func New(svc remote.Service, tokens credential.TokenCache, jwtSecret string, logger *log.Logger) *Context {
	return &Context{
		svc:    svc,
		tokens: tokens,
		secret: jwtSecret,
		log:    logger,
		ready:  make(chan struct{}),
	}
}

// Connect pings the service until it answers or maxAttempts pings failed.
func (c *Context) Connect(ctx context.Context, interval time.Duration, maxAttempts int) error {
	_, err := ready.Await(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.svc.Ping(ctx)
	}, interval, maxAttempts)
	if err != nil {
		return fmt.Errorf("connect to remote service: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Printf("[INFO] Connected to remote service")
	c.checkReady()
	return nil
}

// SignIn validates token, caches it and makes its member current.
func (c *Context) SignIn(ctx context.Context, token string) (auth.Identity, error) {
	id, err := auth.ParseToken(token, c.secret)
	if err != nil {
		return auth.Identity{}, err
	}
	if setter, ok := c.svc.(tokenSetter); ok {
		setter.SetAccessToken(token)
	}
	if err := c.tokens.Save(ctx, token); err != nil {
		// The session still works for this run.
		c.log.Printf("[WARN] Could not cache session token: %v", err)
	}

	c.mu.Lock()
	c.identity = &id
	c.mu.Unlock()
	c.log.Printf("[INFO] Signed in as %s", id.UserID)
	c.checkReady()
	return id, nil
}

// Restore signs in with the cached token, if one is cached and still valid.
// An expired or unreadable token is removed from the cache.
func (c *Context) Restore(ctx context.Context) (auth.Identity, error) {
	token, err := c.tokens.Load(ctx)
	if err != nil {
		return auth.Identity{}, err
	}
	id, err := c.SignIn(ctx, token)
	if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
		if cerr := c.tokens.Clear(ctx); cerr != nil {
			c.log.Printf("[WARN] Could not clear stale session token: %v", cerr)
		}
	}
	return id, err
}

// Identity returns the signed-in member.
func (c *Context) Identity() (auth.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return auth.Identity{}, false
	}
	return *c.identity, true
}

// Handle reports the service handle once both the connection and the
// identity are present. It is the readiness probe for view controllers.
func (c *Context) Handle(_ context.Context) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, ErrNoService
	}
	if c.identity == nil {
		return nil, ErrNoIdentity
	}
	return &Handle{Service: c.svc, Identity: *c.identity}, nil
}

// Ready is closed once Handle would succeed.
func (c *Context) Ready() <-chan struct{} {
	return c.ready
}

func (c *Context) checkReady() {
	c.mu.RLock()
	ok := c.connected && c.identity != nil
	c.mu.RUnlock()
	if ok {
		c.readyOnce.Do(func() { close(c.ready) })
	}
}
