// Package relaypool tracks the health of relay endpoints and picks one to
// use for each call.
package relaypool

import (
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/denisAlshanov/mediarelay/internal/config"
)

type Kind string

const (
	KindCobalt Kind = "cobalt"
	KindPiped  Kind = "piped"
)

type Health string

const (
	HealthHealthy Health = "healthy"
	HealthSuspect Health = "suspect"
	HealthDead    Health = "dead"
)

const deadCooldownFactor = 10

// Instance is a value copy of one relay endpoint's state.
type Instance struct {
	Endpoint            string     `json:"endpoint"`
	BackendKind         Kind       `json:"kind"`
	APIKey              string     `json:"-"`
	Health              Health     `json:"health"`
	SuspectedUntil      *time.Time `json:"suspected_until,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// Pool is safe for concurrent use. All state changes happen under one mutex
// and no I/O is done while it is held.
type Pool struct {
	mu        sync.Mutex
	instances []*Instance
	next      map[Kind]int
	cooldown  time.Duration
	deadAfter int
	now       func() time.Time
}

type Option func(*Pool)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

func New(cfg config.RelayConfig, opts ...Option) *Pool {
	p := &Pool{
		next:      make(map[Kind]int),
		cooldown:  cfg.Cooldown,
		deadAfter: cfg.DeadAfter,
		now:       time.Now,
	}
	if p.cooldown <= 0 {
		p.cooldown = 60 * time.Second
	}
	if p.deadAfter <= 0 {
		p.deadAfter = 5
	}

	seen := make(map[string]bool, len(cfg.Instances))
	for _, ic := range cfg.Instances {
		endpoint := strings.TrimRight(strings.TrimSpace(ic.Endpoint), "/")
		if seen[endpoint] {
			continue
		}
		seen[endpoint] = true
		p.instances = append(p.instances, &Instance{
			Endpoint:    endpoint,
			BackendKind: Kind(ic.Kind),
			APIKey:      ic.APIKey,
			Health:      HealthHealthy,
		})
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Count returns how many instances of kind are configured.
func (p *Pool) Count(kind Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return lo.CountBy(p.instances, func(inst *Instance) bool {
		return inst.BackendKind == kind
	})
}

// SelectInstance round-robins over instances of kind that are not cooling
// down. When every instance is cooling down it returns the one whose
// cool-down ends first. It reports false only when no instance of kind exists.
func (p *Pool) SelectInstance(kind Kind) (Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := lo.Filter(p.instances, func(inst *Instance, _ int) bool {
		return inst.BackendKind == kind
	})
	if len(candidates) == 0 {
		return Instance{}, false
	}

	now := p.now()
	start := p.next[kind] % len(candidates)
	for i := 0; i < len(candidates); i++ {
		idx := (start + i) % len(candidates)
		inst := candidates[idx]
		if !p.coolingDown(inst, now) {
			p.next[kind] = idx + 1
			return copyInstance(inst), true
		}
	}

	soonest := lo.MinBy(candidates, func(a, b *Instance) bool {
		return a.SuspectedUntil.Before(*b.SuspectedUntil)
	})
	return copyInstance(soonest), true
}

// ReportFailure marks the instance suspect for one cool-down, or dead with a
// longer cool-down after too many consecutive failures.
func (p *Pool) ReportFailure(selected Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.find(selected.Endpoint)
	if inst == nil {
		return
	}

	inst.ConsecutiveFailures++
	wait := p.cooldown
	inst.Health = HealthSuspect
	if inst.ConsecutiveFailures >= p.deadAfter {
		inst.Health = HealthDead
		wait = p.cooldown * deadCooldownFactor
	}
	until := p.now().Add(wait)
	inst.SuspectedUntil = &until
}

// ReportSuccess returns the instance to healthy.
func (p *Pool) ReportSuccess(selected Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.find(selected.Endpoint)
	if inst == nil {
		return
	}
	inst.Health = HealthHealthy
	inst.SuspectedUntil = nil
	inst.ConsecutiveFailures = 0
}

// Snapshot returns copies of all instances in configuration order.
func (p *Pool) Snapshot() []Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	return lo.Map(p.instances, func(inst *Instance, _ int) Instance {
		return copyInstance(inst)
	})
}

func (p *Pool) coolingDown(inst *Instance, now time.Time) bool {
	return inst.SuspectedUntil != nil && now.Before(*inst.SuspectedUntil)
}

func (p *Pool) find(endpoint string) *Instance {
	inst, _ := lo.Find(p.instances, func(inst *Instance) bool {
		return inst.Endpoint == endpoint
	})
	return inst
}

func copyInstance(inst *Instance) Instance {
	c := *inst
	if inst.SuspectedUntil != nil {
		until := *inst.SuspectedUntil
		c.SuspectedUntil = &until
	}
	return c
}
