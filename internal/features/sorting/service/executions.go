package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	execdomain "parcel-sorter/internal/features/execution/domain"
	reroute "parcel-sorter/internal/features/reroute/domain"
	"parcel-sorter/internal/features/sorting/domain"
	topology "parcel-sorter/internal/features/topology/domain"
)

var (
	// ErrNoExecution is returned for parcels that are not being processed.
	ErrNoExecution = errors.New("parcel has no running execution")

	errReplaced = errors.New("replaced by a later chute change")
)

// Executions tracks every parcel from detection to the end of its path
// execution and hands reroutes to the running executor.
type Executions struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
}

// NewExecutions creates an empty registry.
func NewExecutions() *Executions {
	return &Executions{handles: make(map[uint64]*Handle)}
}

// Handle is the reroute slot of one parcel. Until the path is armed a reroute
// is confirmed at once: the planner reads the route plan afterwards and picks
// the change up. Once armed, a reroute is confirmed only when the executor
// takes it before a segment.
type Handle struct {
	reg      *Executions
	parcelID uint64
	state    domain.ParcelState
	armed    bool
	sealed   bool
	pending  *request
}

type request struct {
	reroute  execdomain.Reroute
	done     chan error
	resolved bool
}

// resolve reports the outcome to the waiting ticket. Only the first call counts.
func (r *request) resolve(err error) {
	if r.resolved {
		return
	}
	r.resolved = true
	r.done <- err
}

// Ticket is the pending answer to a Push.
type Ticket struct {
	h   *Handle
	req *request
}

// Wait blocks until the executor took the reroute (nil) or rejected it.
// A cancelled wait withdraws the reroute if it is still pending.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case err := <-t.req.done:
		return err
	case <-ctx.Done():
	}

	t.h.reg.mu.Lock()
	if t.h.pending == t.req {
		t.h.pending = nil
		t.req.resolve(ctx.Err())
	}
	t.h.reg.mu.Unlock()
	return <-t.req.done
}

// Register opens the handle of a parcel. Release must be called once the
// parcel's execution has finished.
func (e *Executions) Register(parcelID uint64) *Handle {
	h := &Handle{reg: e, parcelID: parcelID, state: domain.StateDetected}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.handles[parcelID]; ok {
		old.seal(reroute.ErrTooLate)
	}
	e.handles[parcelID] = h
	return h
}

// Release closes h and forgets it unless a newer registration replaced it.
func (e *Executions) Release(h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h.seal(reroute.ErrTooLate)
	h.state = domain.StateCompleted
	if e.handles[h.parcelID] == h {
		delete(e.handles, h.parcelID)
	}
}

// Push offers path to the parcel's executor. A pending reroute that was not
// taken yet is replaced.
func (e *Executions) Push(parcelID uint64, path *topology.SwitchingPath) (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.reroutable(parcelID)
	if err != nil {
		return nil, err
	}
	if h.pending != nil {
		h.pending.resolve(errReplaced)
	}
	return h.offer(execdomain.Reroute{Path: path}), nil
}

// PushException sends a timed out parcel to the exception chute over path.
// It replaces a pending chute change and closes the parcel to further ones.
func (e *Executions) PushException(parcelID uint64, path *topology.SwitchingPath) (*Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.reroutable(parcelID)
	if err != nil {
		return nil, err
	}
	if h.pending != nil {
		h.pending.resolve(reroute.ErrExceptionRouted)
	}
	return h.offer(execdomain.Reroute{Path: path, Timeout: true}), nil
}

// State returns where the parcel is in its pipeline.
func (e *Executions) State(parcelID uint64) (domain.ParcelState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handles[parcelID]
	if !ok {
		return "", false
	}
	return h.state, true
}

func (e *Executions) reroutable(parcelID uint64) (*Handle, error) {
	h, ok := e.handles[parcelID]
	switch {
	case !ok:
		return nil, fmt.Errorf("parcel %d: %w: %w", parcelID, ErrNoExecution, reroute.ErrTooLate)
	case h.state == domain.StateExceptionRouted, h.pending != nil && h.pending.reroute.Timeout:
		return nil, fmt.Errorf("parcel %d: %w: %w", parcelID, ErrNotReroutable, reroute.ErrExceptionRouted)
	case h.sealed:
		return nil, fmt.Errorf("parcel %d: %w: %w", parcelID, ErrNotReroutable, reroute.ErrTooLate)
	}
	return h, nil
}

func (h *Handle) offer(r execdomain.Reroute) *Ticket {
	req := &request{reroute: r, done: make(chan error, 1)}
	if !h.armed {
		req.resolve(nil)
	}
	h.pending = req
	return &Ticket{h: h, req: req}
}

// Advance records the pipeline stage the parcel reached.
func (h *Handle) Advance(state domain.ParcelState) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if !h.sealed {
		h.state = state
	}
}

// State returns the pipeline stage of the parcel.
func (h *Handle) State() domain.ParcelState {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.state
}

// Arm marks the path to target as planned. From here on reroutes wait for the
// executor. A pending change that already leads to target is dropped.
func (h *Handle) Arm(target int64) {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.sealed {
		return
	}
	h.armed = true
	h.state = domain.StatePathPlanned
	if p := h.pending; p != nil && !p.reroute.Timeout && p.reroute.Path.TargetChuteID == target {
		h.pending = nil
		p.resolve(nil)
	}
}

// Seal closes the handle before the path was armed and returns the reroute
// accepted until then, if any.
func (h *Handle) Seal() *execdomain.Reroute {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.sealed {
		return nil
	}

	p := h.pending
	h.pending = nil
	h.sealed = true
	if p == nil {
		return nil
	}
	p.resolve(nil)
	r := p.reroute
	return &r
}

// Next implements execution ports.Reroutes.
func (h *Handle) Next(final bool) *execdomain.Reroute {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	if h.sealed {
		return nil
	}

	if p := h.pending; p != nil {
		h.pending = nil
		p.resolve(nil)
		if p.reroute.Timeout {
			h.state = domain.StateExceptionRouted
		}
		r := p.reroute
		return &r
	}
	if final {
		h.sealed = true
		if h.state != domain.StateExceptionRouted {
			h.state = domain.StateExecuted
		}
	}
	return nil
}

// Close implements execution ports.Reroutes.
func (h *Handle) Close() {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	h.seal(reroute.ErrTooLate)
	if h.state != domain.StateExceptionRouted {
		h.state = domain.StateExecuted
	}
}

func (h *Handle) seal(err error) {
	h.sealed = true
	if p := h.pending; p != nil {
		h.pending = nil
		p.resolve(err)
	}
}
