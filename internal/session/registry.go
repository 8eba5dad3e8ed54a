package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"cli-commander/internal/launcher"
)

// Registry owns the named sessions. Its mutex guards only the map; spawning
// and terminating happen outside it so one slow shell never blocks the rest.
type Registry struct {
	launcher launcher.Launcher
	cfg      registryConfig
	grace    atomic.Int64

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	pending  map[string]chan struct{} // closed once the reserved name's spawn finishes
}

// NewRegistry creates an empty registry that spawns shells with l.
func NewRegistry(l launcher.Launcher, opts ...Option) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		launcher: l,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		pending:  make(map[string]chan struct{}),
	}
	r.grace.Store(int64(cfg.gracePeriod))
	return r
}

// GracePeriod returns the current close grace period.
func (r *Registry) GracePeriod() time.Duration {
	return time.Duration(r.grace.Load())
}

// SetGracePeriod changes the grace period for closes started afterwards.
// Non-positive values are ignored.
func (r *Registry) SetGracePeriod(d time.Duration) {
	if d > 0 {
		r.grace.Store(int64(d))
	}
}

// Open spawns a shell under name. A terminated session still registered
// under the name is replaced.
func (r *Registry) Open(ctx context.Context, name string) (*Session, error) {
	if err := validateName(name); err != nil {
		return nil, newError("open", name, ErrInvalidName, err)
	}

	r.mu.Lock()
	if existing, ok := r.sessions[name]; ok {
		if st := existing.State(); st != StateTerminated {
			r.mu.Unlock()
			return nil, newError("open", name, ErrAlreadyExists, fmt.Errorf("pid %d is %s", existing.PID(), st))
		}
		r.removeLocked(name, existing)
	}
	if _, ok := r.pending[name]; ok {
		r.mu.Unlock()
		return nil, newError("open", name, ErrAlreadyExists, errors.New("shell is starting"))
	}
	if r.cfg.maxSessions > 0 && r.liveCountLocked() >= r.cfg.maxSessions {
		r.mu.Unlock()
		return nil, newError("open", name, ErrLimitReached, fmt.Errorf("limit is %d", r.cfg.maxSessions))
	}
	ready := make(chan struct{})
	r.pending[name] = ready
	r.mu.Unlock()

	proc, err := r.launcher.Launch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, name)
	close(ready)
	if err != nil {
		return nil, newError("open", name, ErrSpawnFailure, err)
	}

	s := newSession(name, proc, r.cfg)
	s.start()
	r.sessions[name] = s
	r.order = append(r.order, name)

	s.logger.Debug("session opened", "pid", s.PID(), "id", s.ID())
	return s, nil
}

// Ensure returns the live session registered under name, opening it if
// needed. When another caller is already spawning the name, Ensure waits for
// that spawn instead of failing. The bool reports whether this call started
// the shell.
func (r *Registry) Ensure(ctx context.Context, name string) (*Session, bool, error) {
	for {
		r.mu.Lock()
		if s, ok := r.sessions[name]; ok && s.State() != StateTerminated {
			r.mu.Unlock()
			return s, false, nil
		}
		ready, spawning := r.pending[name]
		r.mu.Unlock()

		if spawning {
			select {
			case <-ready:
				continue
			case <-ctx.Done():
				return nil, false, newError("open", name, ErrSpawnFailure, ctx.Err())
			}
		}

		s, err := r.Open(ctx, name)
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		return s, err == nil, err
	}
}

// Lookup returns the live session registered under name.
func (r *Registry) Lookup(name string) (*Session, error) {
	s, ok := r.get(name)
	if !ok || s.State() == StateTerminated {
		return nil, newError("lookup", name, ErrNotFound, nil)
	}
	return s, nil
}

// Inspect returns the session registered under name, terminated or not.
func (r *Registry) Inspect(name string) (*Session, error) {
	s, ok := r.get(name)
	if !ok {
		return nil, newError("inspect", name, ErrNotFound, nil)
	}
	return s, nil
}

// List returns a snapshot of every registered session in insertion order.
func (r *Registry) List() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.order))
	for _, name := range r.order {
		sessions = append(sessions, r.sessions[name])
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close terminates the session registered under name and removes it. The
// entry stays registered if the shell cannot be terminated.
func (r *Registry) Close(ctx context.Context, name string) (Termination, error) {
	s, ok := r.get(name)
	if !ok {
		return Termination{Name: name}, newError("close", name, ErrNotFound, nil)
	}

	term, err := s.Close(ctx, r.GracePeriod())
	if err != nil {
		return term, err
	}

	r.mu.Lock()
	removed := r.removeLocked(name, s)
	r.mu.Unlock()
	if !removed {
		// A concurrent close got here first.
		return term, newError("close", name, ErrNotFound, nil)
	}
	return term, nil
}

// CloseAll closes every session in parallel and returns how many were
// removed. Failures are joined; failed sessions stay registered.
func (r *Registry) CloseAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	names := append([]string(nil), r.order...)
	r.mu.Unlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
		errs   []error
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := r.Close(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				closed++
			case errors.Is(err, ErrNotFound):
				// Closed by someone else meanwhile.
			default:
				r.cfg.logger.Error("close failed", "session", name, "error", err)
				errs = append(errs, err)
			}
		}(name)
	}
	wg.Wait()

	return closed, errors.Join(errs...)
}

// Prune removes every terminated session and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for _, name := range append([]string(nil), r.order...) {
		s := r.sessions[name]
		if s.State() == StateTerminated && r.removeLocked(name, s) {
			pruned++
		}
	}
	return pruned
}

func (r *Registry) get(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	return s, ok
}

// removeLocked drops name if it still maps to s.
func (r *Registry) removeLocked(name string, s *Session) bool {
	if r.sessions[name] != s {
		return false
	}
	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) liveCountLocked() int {
	count := len(r.pending)
	for _, s := range r.sessions {
		if s.State() != StateTerminated {
			count++
		}
	}
	return count
}

func validateName(name string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.New("name contains whitespace")
	}
	return nil
}
