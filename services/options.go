package services

import (
	"sync"
	"time"
)

// Mode penomoran order
const (
	OrderNumberNever = "never"
	OrderNumberDaily = "daily"
)

// Options -> parameter waktu & kebijakan yang dibagi semua service
type Options struct {
	SessionTTL          time.Duration
	CodeTTL             time.Duration
	CodeCooldown        time.Duration
	MaxCodeAttempts     int
	InteractionCooldown time.Duration
	OrderNumberReset    string
	Location            *time.Location
	Now                 func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 4 * time.Hour
	}
	if o.CodeTTL <= 0 {
		o.CodeTTL = 5 * time.Minute
	}
	if o.CodeCooldown <= 0 {
		o.CodeCooldown = 60 * time.Second
	}
	if o.MaxCodeAttempts <= 0 {
		o.MaxCodeAttempts = 5
	}
	if o.InteractionCooldown <= 0 {
		o.InteractionCooldown = 60 * time.Second
	}
	if o.OrderNumberReset == "" {
		o.OrderNumberReset = OrderNumberNever
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// keyedMutex -> serialisasi per key (per order, per meja, per restaurant)
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock mengembalikan fungsi unlock
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
