package doclock

import (
	"fmt"
	"sync"
	"time"
)

// Default tunables, applied by Register when a Descriptor leaves them
// zero. With these defaults a contended acquire makes two attempts, with
// one 0.2s sleep between them, before returning ErrLockTimeout.
const (
	DefaultMaxRetries         = 2
	DefaultFirstRetryInterval = 200 * time.Millisecond
	DefaultMaxRetryInterval   = 5 * time.Second
	DefaultMaxLifetime        = 60 * time.Second
)

// Descriptor is the process-local, read-only-after-registration
// configuration for one lockable class (spec.md SS3 "Lockable descriptor").
// Build one as a struct literal and pass it to Register.
type Descriptor struct {
	// ClassName namespaces the re-entrancy table and is what Handle.
	// ClassName must return for instances this descriptor governs.
	ClassName string

	// ScopeSource and KeySource derive the lock document's compound
	// identity from an instance. Both may be left nil: a nil ScopeSource
	// makes the scope ClassName itself, and Register replaces a nil
	// KeySource with Method("ID").
	ScopeSource StringSource
	KeySource   StringSource

	// ParentSource is nil for a root descriptor. A non-nil ParentSource
	// makes this class non-root: resolveRoot will keep following it
	// until it reaches a descriptor with ParentSource == nil.
	ParentSource ParentSource

	MaxRetries         int
	FirstRetryInterval time.Duration
	MaxRetryInterval   time.Duration
	MaxLifetime        time.Duration
}

// IsRoot reports whether this descriptor has no parent source, i.e.
// whether instances it governs are themselves lock roots.
func (d *Descriptor) IsRoot() bool { return d.ParentSource == nil }

func (d *Descriptor) scopeFor(h Handle) (string, error) {
	if d.ScopeSource == nil {
		return d.ClassName, nil
	}
	return d.ScopeSource(h)
}

func (d *Descriptor) keyFor(h Handle) (string, error) {
	if d.KeySource == nil {
		return "", fmt.Errorf("%w: %s has no KeySource configured", ErrArgumentError, d.ClassName)
	}
	return d.KeySource(h)
}

func (d *Descriptor) parentFor(h Handle) (Handle, error) {
	if d.ParentSource == nil {
		return nil, nil
	}
	return d.ParentSource(h)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Descriptor{}
)

// Register adds desc to the process-global, read-only descriptor registry
// keyed by desc.ClassName, filling in defaults for any zero tunables. It
// returns ErrArgumentError if ClassName is missing - the one field with no
// sensible default. KeySource defaults to Method("ID") if left nil, matching
// spec.md SS6's "key = :id (instance attribute named id)".
//
// Registration is a one-shot, process-init-time operation (spec.md SS6); it
// is not safe to Register the same ClassName twice with different
// configuration, and doing so silently replaces the earlier entry.
func Register(desc *Descriptor) error {
	if desc.ClassName == "" {
		return fmt.Errorf("%w: ClassName is required", ErrArgumentError)
	}
	if desc.KeySource == nil {
		desc.KeySource = Method("ID")
	}
	if desc.MaxRetries <= 0 {
		desc.MaxRetries = DefaultMaxRetries
	}
	if desc.FirstRetryInterval <= 0 {
		desc.FirstRetryInterval = DefaultFirstRetryInterval
	}
	if desc.MaxRetryInterval <= 0 {
		desc.MaxRetryInterval = DefaultMaxRetryInterval
	}
	if desc.MaxLifetime <= 0 {
		desc.MaxLifetime = DefaultMaxLifetime
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[desc.ClassName] = desc
	return nil
}

// MustRegister is Register, panicking on error. Intended for package-level
// init() registration where a bad Descriptor is a programming error, not a
// runtime condition to recover from.
func MustRegister(desc *Descriptor) {
	if err := Register(desc); err != nil {
		panic(err)
	}
}

func descriptorFor(h Handle) (*Descriptor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[h.ClassName()]
	if !ok {
		return nil, fmt.Errorf("%w: class %q is not registered", ErrInvalidConfig, h.ClassName())
	}
	return d, nil
}
