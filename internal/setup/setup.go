// Package setup drives account provisioning as an explicit state
// machine, so the CLI and the gateway share one setup flow.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/identity"
)

// Setup states. A run moves idle -> generating -> probing ->
// awaiting-confirmation -> completed; cancelled and failed are reachable
// from any non-terminal state.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateProbing    State = "probing"
	StateAwaiting   State = "awaiting-confirmation"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// ErrSetupConflict is returned when a setup run is started while another
// run is still in flight.
var ErrSetupConflict = errors.New("setup already in progress")

// ErrNotAwaiting is returned when Complete is called outside the
// awaiting-confirmation state.
var ErrNotAwaiting = errors.New("setup is not awaiting confirmation")

// Prober verifies the account datastore path is usable.
type Prober interface {
	Probe(stateRoot, env, accountID, walletKey string) (string, error)
}

// Committer persists a confirmed identity into configuration.
type Committer interface {
	Commit(accountID string, material identity.Material) error
}

// Status is a point-in-time snapshot of the setup run.
type Status struct {
	State         State     `json:"state"`
	AccountID     string    `json:"account_id,omitempty"`
	PublicAddress string    `json:"public_address,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	DatabasePath  string    `json:"database_path,omitempty"`
	GeneratedKey  bool      `json:"generated_key"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Request carries the inputs for one setup run. Empty WalletKey means a
// fresh wallet is generated.
type Request struct {
	AccountID       string
	WalletKey       string
	DBEncryptionKey string
	Env             string
	StateRoot       string
}

// Controller is the singleton setup state machine. All transitions go
// through its mutex; Status is safe from any goroutine.
type Controller struct {
	mu       sync.Mutex
	prober   Prober
	commit   Committer
	state    State
	status   Status
	material identity.Material
	req      Request
}

// NewController creates a controller in the idle state.
func NewController(prober Prober, committer Committer) *Controller {
	return &Controller{
		prober: prober,
		commit: committer,
		state:  StateIdle,
		status: Status{State: StateIdle},
	}
}

// Begin runs generation and probing synchronously, leaving the run in
// awaiting-confirmation on success. A second Begin while a run is active
// returns ErrSetupConflict with the state untouched.
func (c *Controller) Begin(ctx context.Context, req Request) (Status, error) {
	c.mu.Lock()
	if c.state == StateGenerating || c.state == StateProbing || c.state == StateAwaiting {
		st := c.status
		c.mu.Unlock()
		return st, ErrSetupConflict
	}
	now := time.Now()
	c.req = req
	c.state = StateGenerating
	c.status = Status{State: StateGenerating, AccountID: req.AccountID, StartedAt: now, UpdatedAt: now}
	c.mu.Unlock()

	slog.Info("Setup started", "account", req.AccountID, "env", req.Env)

	material, err := identity.Resolve(req.WalletKey, req.DBEncryptionKey)
	if err != nil {
		return c.fail(fmt.Errorf("resolve identity: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return c.cancel()
	}

	c.transition(StateProbing, func(s *Status) {
		s.PublicAddress = material.PublicAddress
		s.Fingerprint = identity.Fingerprint(material.WalletKey)
		s.GeneratedKey = material.GeneratedWallet
	})

	dbPath, err := c.prober.Probe(req.StateRoot, req.Env, req.AccountID, material.WalletKey)
	if err != nil {
		return c.fail(fmt.Errorf("probe datastore: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return c.cancel()
	}

	c.mu.Lock()
	c.material = material
	c.state = StateAwaiting
	c.status.State = StateAwaiting
	c.status.DatabasePath = dbPath
	c.status.UpdatedAt = time.Now()
	st := c.status
	c.mu.Unlock()

	slog.Info("Setup awaiting confirmation", "account", req.AccountID, "address", material.PublicAddress, "generated", material.GeneratedWallet)
	return st, nil
}

// Status returns the current snapshot without side effects.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Complete commits the pending identity. Valid only from
// awaiting-confirmation; the run must hold a db encryption key.
func (c *Controller) Complete() (Status, error) {
	c.mu.Lock()
	if c.state != StateAwaiting {
		st := c.status
		c.mu.Unlock()
		return st, ErrNotAwaiting
	}
	material := c.material
	accountID := c.req.AccountID
	c.mu.Unlock()

	if material.DBEncryptionKey == "" {
		return c.fail(errors.New("pending identity has no db encryption key"))
	}
	if err := c.commit.Commit(accountID, material); err != nil {
		return c.fail(fmt.Errorf("commit identity: %w", err))
	}

	c.mu.Lock()
	c.state = StateCompleted
	c.status.State = StateCompleted
	c.status.UpdatedAt = time.Now()
	c.material = identity.Material{}
	st := c.status
	c.mu.Unlock()

	slog.Info("Setup completed", "account", accountID)
	return st, nil
}

// Cancel aborts the current run. Safe from any state; cancelling a
// terminal or idle run is a no-op.
func (c *Controller) Cancel() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle, StateCompleted, StateCancelled, StateFailed:
		return c.status
	}
	c.state = StateCancelled
	c.status.State = StateCancelled
	c.status.UpdatedAt = time.Now()
	c.material = identity.Material{}
	slog.Info("Setup cancelled", "account", c.status.AccountID)
	return c.status
}

// Material returns the pending identity while the run awaits
// confirmation, for display purposes only.
func (c *Controller) Material() (identity.Material, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaiting {
		return identity.Material{}, false
	}
	return c.material, true
}

func (c *Controller) transition(next State, mutate func(*Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = next
	c.status.State = next
	c.status.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(&c.status)
	}
}

func (c *Controller) fail(err error) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFailed
	c.status.State = StateFailed
	c.status.Error = err.Error()
	c.status.UpdatedAt = time.Now()
	c.material = identity.Material{}
	slog.Error("Setup failed", "account", c.status.AccountID, "error", err)
	return c.status, err
}

func (c *Controller) cancel() (Status, error) {
	st := c.Cancel()
	return st, context.Canceled
}
