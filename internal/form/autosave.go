// File path: internal/form/autosave.go
package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/consultflow/consultflow/internal/common"
)

var (
	// ErrSaveInFlight is returned by SaveNow when another save is running.
	ErrSaveInFlight = errors.New("save already in flight")
	// ErrSaverClosed is returned by SaveNow after Stop.
	ErrSaverClosed = errors.New("auto-saver closed")
)

// SaveFunc persists a snapshot of the form's section data. Implementations
// return a typed gateway error on failure; the saver treats every failure as
// retry-eligible and leaves classification to the caller's manual-save path.
type SaveFunc func(ctx context.Context, snapshot map[Section]SectionData) error

// AutoSaverConfig tunes the debounce and retry behavior.
type AutoSaverConfig struct {
	// Debounce is the quiet period after the last edit before a save fires.
	Debounce time.Duration
	// MaxRetries bounds scheduled retries after a failed save.
	MaxRetries int
	// RetryBase scales the exponential backoff: delay = RetryBase * 2^attempt.
	RetryBase time.Duration
	// Scheduler defaults to the wall-clock timer scheduler.
	Scheduler Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
	// OnExhausted, when set, is invoked once each time retries run out, so a
	// UI can show a passive "not saved" indicator.
	OnExhausted func()
}

func (c AutoSaverConfig) withDefaults() AutoSaverConfig {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.Scheduler == nil {
		c.Scheduler = NewTimerScheduler()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// AutoSaver decouples the rate of user edits from the rate of network writes.
// Every edit (re)arms a debounce timer; on fire it sends the full current
// snapshot, retrying with exponential backoff up to MaxRetries before going
// quiet until the next edit. A single save is in flight at a time.
//
// All callbacks are serialized through the saver's mutex, so the happens-
// before ordering of the original cooperative model holds even though Go
// timers fire on their own goroutines.
type AutoSaver struct {
	mu    sync.Mutex
	state *State
	save  SaveFunc
	cfg   AutoSaverConfig

	cancel       CancelFunc
	attempts     int
	exhausted    bool
	pendingEdits bool
	enabled      bool
	closed       bool
}

// NewAutoSaver wires a saver to the state it watches and the persistence
// call it drives.
func NewAutoSaver(state *State, save SaveFunc, cfg AutoSaverConfig) *AutoSaver {
	return &AutoSaver{state: state, save: save, cfg: cfg.withDefaults()}
}

// SetEnabled arms or disarms scheduling. A session without a server-side
// record yet keeps the saver disarmed so edits never trigger network calls.
func (a *AutoSaver) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	if !enabled && a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Edit applies a section update to the watched state and, when armed,
// (re)arms the debounce timer. This is the one write path for section data
// shared with the timer goroutines, so it runs under the saver's lock.
func (a *AutoSaver) Edit(section Section, data SectionData) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if !a.state.UpdateSection(section, data) {
		return false
	}
	if a.enabled {
		a.rearmLocked()
	}
	return true
}

// NotifyEdit (re)arms the debounce timer. Rapid-fire edits collapse into one
// save after the user pauses. Each new cycle resets the retry budget, so a
// session cannot be stranded with auto-save disabled by earlier failures.
func (a *AutoSaver) NotifyEdit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.rearmLocked()
}

func (a *AutoSaver) rearmLocked() {
	a.attempts = 0
	a.exhausted = false
	a.pendingEdits = true
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = a.cfg.Scheduler.Schedule(a.cfg.Debounce, a.flush)
}

// CancelPending drops any armed timer without closing the saver. Submit uses
// it so a stale auto-save cannot race the final update/complete sequence.
func (a *AutoSaver) CancelPending() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Dirty reads the watched state's dirtiness under the saver's lock.
func (a *AutoSaver) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Dirty()
}

// LastSavedAt reads the last successful save time under the saver's lock.
func (a *AutoSaver) LastSavedAt() *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.LastSavedAt()
}

// SaveNow performs an immediate save, bypassing the debounce timer. Unlike
// the timer path it surfaces the failure to the caller: silent loss during an
// explicit save is not acceptable.
func (a *AutoSaver) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrSaverClosed
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if !a.state.Dirty() {
		a.mu.Unlock()
		return nil
	}
	if !a.state.BeginSave() {
		a.mu.Unlock()
		return ErrSaveInFlight
	}
	snapshot := a.state.Snapshot()
	a.pendingEdits = false
	a.mu.Unlock()

	err := a.save(ctx, snapshot)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return err
	}
	if err != nil {
		a.state.AbortSave()
		return err
	}
	a.state.AcknowledgeSave(a.cfg.Now(), !a.pendingEdits)
	a.attempts = 0
	a.exhausted = false
	return nil
}

// Stop cancels any pending timer and discards late save completions. The
// owning session calls it when the form session ends.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Exhausted reports whether the last retry budget ran out without a
// successful save.
func (a *AutoSaver) Exhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exhausted
}

func (a *AutoSaver) flush() {
	a.mu.Lock()
	a.cancel = nil // the timer that invoked us is spent
	if a.closed || !a.state.Dirty() {
		a.mu.Unlock()
		return
	}
	if !a.state.BeginSave() {
		// A save is in flight; its completion re-arms the cycle.
		a.mu.Unlock()
		return
	}
	snapshot := a.state.Snapshot()
	a.pendingEdits = false
	a.mu.Unlock()

	err := a.save(context.Background(), snapshot)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		// The session is gone; completing into a disposed form is a no-op.
		return
	}
	if err == nil {
		a.state.AcknowledgeSave(a.cfg.Now(), !a.pendingEdits)
		a.attempts = 0
		a.exhausted = false
		if a.state.Dirty() && a.cancel == nil {
			// Edits landed mid-save without re-arming; catch up.
			a.cancel = a.cfg.Scheduler.Schedule(a.cfg.Debounce, a.flush)
		}
		return
	}

	a.state.AbortSave()
	if a.attempts >= a.cfg.MaxRetries {
		a.exhausted = true
		common.Logger().Warn("autosave: retries exhausted", "attempts", a.attempts)
		if a.cfg.OnExhausted != nil {
			a.cfg.OnExhausted()
		}
		return
	}
	a.attempts++
	delay := a.cfg.RetryBase << a.attempts
	common.Logger().Debug("autosave: scheduling retry", "attempt", a.attempts, "delay", delay, "error", err)
	a.cancel = a.cfg.Scheduler.Schedule(delay, a.flush)
}
