package testing

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/store"
)

// Common chaos errors.
var (
	ErrChaosInjected = errors.New("chaos: simulated error")
	ErrChaosTimeout  = errors.New("chaos: simulated timeout")
)

// Fault names checked by ChaosRepository.
const (
	FaultGet = "get"
	FaultPut = "put"
)

// FaultInjector provides programmatic fault injection.
type FaultInjector struct {
	faults map[string]*Fault
	mu     sync.RWMutex
}

// Fault represents an injectable fault.
type Fault struct {
	Name        string
	Probability float64
	Error       error
	Latency     time.Duration
	Active      bool
}

// NewFaultInjector creates a new fault injector.
func NewFaultInjector() *FaultInjector {
	return &FaultInjector{
		faults: make(map[string]*Fault),
	}
}

// Register registers a fault.
func (fi *FaultInjector) Register(name string, fault *Fault) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fault.Name = name
	fi.faults[name] = fault
}

// Fail registers and activates a fault that always returns err.
func (fi *FaultInjector) Fail(name string, err error) {
	fi.Register(name, &Fault{Probability: 1, Error: err, Active: true})
}

// Activate activates a fault.
func (fi *FaultInjector) Activate(name string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if f, ok := fi.faults[name]; ok {
		f.Active = true
	}
}

// Deactivate deactivates a fault.
func (fi *FaultInjector) Deactivate(name string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if f, ok := fi.faults[name]; ok {
		f.Active = false
	}
}

// DeactivateAll deactivates all faults.
func (fi *FaultInjector) DeactivateAll() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for _, f := range fi.faults {
		f.Active = false
	}
}

// Check returns the error of fault name if it is active and fires.
func (fi *FaultInjector) Check(ctx context.Context, name string) error {
	fi.mu.RLock()
	fault, ok := fi.faults[name]
	var (
		active  bool
		latency time.Duration
		p       float64
		err     error
	)
	if ok {
		active, latency, p, err = fault.Active, fault.Latency, fault.Probability, fault.Error
	}
	fi.mu.RUnlock()

	if !active {
		return nil
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p > 0 && rand.Float64() < p {
		if err == nil {
			err = ErrChaosInjected
		}
		return err
	}
	return nil
}

// ChaosRepository wraps a page repository with injectable faults and a gate
// that holds writes in flight.
type ChaosRepository struct {
	wrapped store.Repository
	faults  *FaultInjector

	gate chan struct{}
	mu   sync.Mutex

	gets atomic.Int64
	puts atomic.Int64
}

// NewChaosRepository wraps repo.
func NewChaosRepository(repo store.Repository) *ChaosRepository {
	return &ChaosRepository{wrapped: repo, faults: NewFaultInjector()}
}

// Faults returns the injector consulted with FaultGet and FaultPut.
func (c *ChaosRepository) Faults() *FaultInjector {
	return c.faults
}

// Hold makes following Puts wait until Release.
func (c *ChaosRepository) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate == nil {
		c.gate = make(chan struct{})
	}
}

// Release lets held Puts continue.
func (c *ChaosRepository) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

// Gets returns the number of Get calls.
func (c *ChaosRepository) Gets() int { return int(c.gets.Load()) }

// Puts returns the number of Put calls.
func (c *ChaosRepository) Puts() int { return int(c.puts.Load()) }

// Get implements store.Repository.
func (c *ChaosRepository) Get(ctx context.Context, page string) ([]byte, error) {
	c.gets.Add(1)
	if err := c.faults.Check(ctx, FaultGet); err != nil {
		return nil, err
	}
	return c.wrapped.Get(ctx, page)
}

// Put implements store.Repository.
func (c *ChaosRepository) Put(ctx context.Context, page string, doc []byte) ([]byte, error) {
	c.puts.Add(1)

	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ErrChaosTimeout
		}
	}

	if err := c.faults.Check(ctx, FaultPut); err != nil {
		return nil, err
	}
	return c.wrapped.Put(ctx, page, doc)
}
