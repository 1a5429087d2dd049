package login

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tajious/bmconsole/internal/models"
)

type Step string

const (
	StepIdentity Step = "identity"
	StepPassword Step = "password-challenge"
	StepCode     Step = "code-challenge"
)

const DefaultResendSeconds = 60

// Accounts is the part of the accounts service the flow needs.
type Accounts interface {
	DetectRole(ctx context.Context, identity string) (models.Role, error)
	RequestCode(ctx context.Context, identity string) error
	VerifyCode(ctx context.Context, identity, code string) (models.TokenPair, error)
	PasswordLogin(ctx context.Context, username, password string) (models.TokenPair, error)
}

// Session receives the issued tokens once a challenge succeeds.
type Session interface {
	Login(ctx context.Context, access, refresh string, role models.Role) error
}

type Options struct {
	ResendSeconds int
	Ticker        Ticker
	Logger        *slog.Logger
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	Step          Step        `json:"step"`
	Identity      string      `json:"identity,omitempty"`
	Role          models.Role `json:"role,omitempty"`
	Message       string      `json:"message"`
	Loading       bool        `json:"loading"`
	ResendIn      int         `json:"resend_in"`
	CanResend     bool        `json:"can_resend"`
	Authenticated bool        `json:"authenticated"`
}

// Controller drives one sign-in attempt: identity, then a password or code
// challenge, then session establishment. Failures never surface as errors;
// they land in the message field and leave the controller resubmittable.
//
// Only one accounts call runs at a time. loading is the gate: a call that
// would start a request while another is outstanding is dropped and logged.
type Controller struct {
	mu       sync.Mutex
	accounts Accounts
	session  Session
	ticker   Ticker
	logger   *slog.Logger
	resend   int

	step            Step
	identity        string
	role            models.Role
	message         string
	loading         bool
	resendIn        int
	authenticated   bool
	initialCodeSent bool
	closed          bool

	// flow is bumped by Reset and Close. Results of requests started under
	// an older flow only release loading.
	flow      uint64
	timerGen  uint64
	stopTimer func()
}

func NewController(accounts Accounts, session Session, opts Options) *Controller {
	if opts.ResendSeconds <= 0 {
		opts.ResendSeconds = DefaultResendSeconds
	}
	if opts.Ticker == nil {
		opts.Ticker = SystemTicker{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		accounts: accounts,
		session:  session,
		ticker:   opts.Ticker,
		logger:   opts.Logger,
		resend:   opts.ResendSeconds,
		step:     StepIdentity,
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Step:          c.step,
		Identity:      c.identity,
		Role:          c.role,
		Message:       c.message,
		Loading:       c.loading,
		ResendIn:      c.resendIn,
		CanResend:     c.step == StepCode && c.resendIn == 0 && !c.loading && !c.authenticated,
		Authenticated: c.authenticated,
	}
}

// ResolveIdentity looks up the role behind identity and moves to the
// matching challenge. Renters get their first code right away.
func (c *Controller) ResolveIdentity(ctx context.Context, identity string) {
	identity = strings.TrimSpace(identity)

	c.mu.Lock()
	if !c.begin("resolve identity", StepIdentity) {
		c.mu.Unlock()
		return
	}
	if identity == "" {
		c.message = MsgIdentityRequired
		c.mu.Unlock()
		return
	}
	c.loading = true
	flow := c.flow
	c.mu.Unlock()

	role, err := c.accounts.DetectRole(ctx, identity)

	c.mu.Lock()
	if !c.current(flow) {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Info("identity lookup failed", "error", err)
		c.message = messageFor(err)
		c.loading = false
		c.mu.Unlock()
		return
	}

	c.identity = identity
	c.role = role
	var dispatch bool
	switch role {
	case models.RoleRenter:
		dispatch = c.enter(StepCode)
	default:
		c.enter(StepPassword)
	}
	c.logger.Info("identity resolved", "role", role, "step", c.step)

	if !dispatch {
		c.loading = false
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.dispatch(ctx, flow, identity)
}

// RequestCode sends a new code to override, or to the resolved identity when
// override is blank, and restarts the resend countdown.
func (c *Controller) RequestCode(ctx context.Context, override string) {
	target := strings.TrimSpace(override)

	c.mu.Lock()
	if !c.begin("request code", StepCode) {
		c.mu.Unlock()
		return
	}
	if target == "" {
		target = c.identity
	}
	if target == "" {
		c.message = MsgIdentityRequired
		c.mu.Unlock()
		return
	}
	c.loading = true
	flow := c.flow
	c.mu.Unlock()

	c.dispatch(ctx, flow, target)
}

// VerifyCode submits a code for the resolved identity. Format checks are
// left to the accounts service.
func (c *Controller) VerifyCode(ctx context.Context, code string) {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	if !c.begin("verify code", StepCode) {
		c.mu.Unlock()
		return
	}
	if code == "" {
		c.message = MsgCodeRequired
		c.mu.Unlock()
		return
	}
	c.loading = true
	flow := c.flow
	identity := c.identity
	c.mu.Unlock()

	pair, err := c.accounts.VerifyCode(ctx, identity, code)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.current(flow) {
			return
		}
		c.logger.Info("code verification failed", "error", err)
		c.message = messageFor(err)
		c.loading = false
		return
	}

	c.establish(ctx, flow, pair, models.RoleRenter)
}

// LoginWithPassword signs a staff member in. A blank identity falls back to
// the resolved one.
func (c *Controller) LoginWithPassword(ctx context.Context, identity, password string) {
	identity = strings.TrimSpace(identity)

	c.mu.Lock()
	if !c.begin("password login", StepPassword) {
		c.mu.Unlock()
		return
	}
	if identity == "" {
		identity = c.identity
	}
	if identity == "" {
		c.message = MsgIdentityRequired
		c.mu.Unlock()
		return
	}
	if strings.TrimSpace(password) == "" {
		c.message = MsgPasswordRequired
		c.mu.Unlock()
		return
	}
	c.loading = true
	flow := c.flow
	c.mu.Unlock()

	pair, err := c.accounts.PasswordLogin(ctx, identity, password)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.current(flow) {
			return
		}
		c.logger.Info("password login failed", "error", err)
		c.message = messageFor(err)
		c.loading = false
		return
	}

	c.establish(ctx, flow, pair, models.RoleStaff)
}

// Reset abandons the attempt and returns to the identity step. A request
// still in flight finishes, but its result is dropped. A signed-in controller
// accepts nothing until it is reset.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.flow++
	c.stopTimerLocked()
	c.step = StepIdentity
	c.identity = ""
	c.role = ""
	c.message = ""
	c.resendIn = 0
	c.authenticated = false
	c.initialCodeSent = false
}

// Close stops the resend countdown. Later operations are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.flow++
	c.stopTimerLocked()
}

// begin admits an operation. It must be called with mu held and clears the
// previous message when the operation is admitted.
func (c *Controller) begin(op string, step Step) bool {
	switch {
	case c.closed:
		c.logger.Warn("login operation rejected", "op", op, "reason", "closed")
		return false
	case c.loading:
		c.logger.Warn("login operation rejected", "op", op, "reason", "request in flight")
		return false
	case c.authenticated:
		c.logger.Warn("login operation rejected", "op", op, "reason", "signed in")
		return false
	case c.step != step:
		c.logger.Warn("login operation rejected", "op", op, "reason", "wrong step", "step", c.step)
		return false
	}
	c.message = ""
	return true
}

// current reports whether a request started under flow may still apply its
// result. Either way loading is released for a stale flow.
func (c *Controller) current(flow uint64) bool {
	if c.flow != flow {
		c.loading = false
		return false
	}
	return true
}

// enter moves to step. For the code step it reports whether the first code
// is still owed, which is true at most once per flow.
func (c *Controller) enter(step Step) bool {
	c.step = step
	if step != StepCode || c.initialCodeSent {
		return false
	}
	c.initialCodeSent = true
	return true
}

// dispatch sends a code with loading already held.
func (c *Controller) dispatch(ctx context.Context, flow uint64, identity string) {
	err := c.accounts.RequestCode(ctx, identity)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(flow) {
		return
	}
	c.loading = false
	if err != nil {
		c.logger.Info("code dispatch failed", "error", err)
		c.message = messageFor(err)
		return
	}
	c.message = MsgCodeSent
	c.startTimerLocked()
}

// establish hands the issued tokens to the session with loading held.
func (c *Controller) establish(ctx context.Context, flow uint64, pair models.TokenPair, role models.Role) {
	err := c.session.Login(ctx, pair.Access, pair.Refresh, role)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(flow) {
		return
	}
	c.loading = false
	if err != nil {
		c.logger.Error("session login failed", "role", role, "error", err)
		c.message = MsgSessionFailed
		return
	}
	c.stopTimerLocked()
	c.resendIn = 0
	c.authenticated = true
	c.message = ""
	c.logger.Info("signed in", "role", role)
}

func (c *Controller) startTimerLocked() {
	c.stopTimerLocked()
	c.resendIn = c.resend
	gen := c.timerGen
	c.stopTimer = c.ticker.Start(time.Second, func() { c.tick(gen) })
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen {
		return
	}
	if c.resendIn > 0 {
		c.resendIn--
	}
	if c.resendIn == 0 {
		c.stopTimerLocked()
	}
}
