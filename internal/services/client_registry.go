package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// Client bundles the per-client state machines
type Client struct {
	ID         string
	Session    *SessionManager
	Onboarding *OnboardingTracker

	mu       sync.Mutex
	lastSeen time.Time
}

func (c *Client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Close disposes both state machines. Persisted state is kept.
func (c *Client) Close() {
	c.Onboarding.Close()
	c.Session.Close()
}

// ClientFactory builds a hydrated client for id
type ClientFactory func(ctx context.Context, id string) *Client

// ClientRegistry keeps one Client per client ID, created on first use and
// closed after sitting idle
type ClientRegistry struct {
	factory ClientFactory
	clock   domain.Clock
	idleTTL time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
	cron    *cron.Cron
}

// NewClientRegistry creates an empty registry
func NewClientRegistry(factory ClientFactory, clock domain.Clock, idleTTL time.Duration, log *logrus.Entry) *ClientRegistry {
	if clock == nil {
		clock = SystemClock()
	}
	return &ClientRegistry{
		factory: factory,
		clock:   clock,
		idleTTL: idleTTL,
		log:     log.WithField("component", "client_registry"),
		clients: make(map[string]*Client),
	}
}

// NewClientFactory wires the standard per-client components. store returns
// the persisted store of one client.
func NewClientFactory(store func(id string) domain.Store, deps SessionDeps, uploader domain.Uploader, config SessionConfig) ClientFactory {
	return func(ctx context.Context, id string) *Client {
		d := deps
		d.Store = store(id)
		if d.Log != nil {
			d.Log = d.Log.WithField("client_id", id)
		}
		session := NewSessionManager(ctx, d, config)
		tracker := NewOnboardingTracker(TrackerDeps{
			Session:  session,
			Store:    d.Store,
			Identity: d.Identity,
			Profiles: d.Profiles,
			Uploader: uploader,
			Audit:    d.Audit,
			Clock:    d.Clock,
			Log:      d.Log,
		}, config)
		return &Client{ID: id, Session: session, Onboarding: tracker}
	}
}

// Get returns the client for id, creating and hydrating it on first use
func (r *ClientRegistry) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrClosed
	}

	c, ok := r.clients[id]
	if !ok {
		c = r.factory(ctx, id)
		r.clients[id] = c
		r.log.WithField("client_id", id).Debug("client created")
	}
	c.touch(r.clock.Now())
	return c, nil
}

// Len returns the number of live clients
func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// EvictIdle closes clients not seen for the idle TTL and returns how many
// were removed
func (r *ClientRegistry) EvictIdle() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Client
	for id, c := range r.clients {
		if c.idleSince().Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		r.log.WithField("evicted", len(idle)).Info("idle clients evicted")
	}
	return len(idle)
}

// StartEviction runs EvictIdle on the cron schedule
func (r *ClientRegistry) StartEviction(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.EvictIdle() }); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		r.cron.Stop()
	}
	r.cron = c
	c.Start()
	return nil
}

// Close stops eviction and closes every client
func (r *ClientRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	clients := r.clients
	r.clients = make(map[string]*Client)
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, client := range clients {
		client.Close()
	}
}
