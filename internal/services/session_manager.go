package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// Logout reasons passed to the audit log
const (
	LogoutUser    = "user"
	LogoutExpired = "expired"
)

// SessionConfig tunes a SessionManager
type SessionConfig struct {
	ResendCooldown      time.Duration
	ExpiryCheckInterval time.Duration
	ExpiryWarning       time.Duration
	EmailLabel          string
}

// SessionDeps are the collaborators of a SessionManager
type SessionDeps struct {
	Store    domain.Store
	Identity domain.IdentityProvider
	Profiles domain.ProfileService
	Tokens   domain.TokenService
	Audit    domain.AuditLogger
	Clock    domain.Clock
	Log      *logrus.Entry
}

// SessionManager owns the authentication state of one client. It is created
// per client, hydrated from the persisted store, and must be closed when the
// client goes away.
type SessionManager struct {
	store    domain.Store
	idp      domain.IdentityProvider
	profiles domain.ProfileService
	tokens   domain.TokenService
	audit    domain.AuditLogger
	clock    domain.Clock
	config   SessionConfig
	log      *logrus.Entry

	guard    *PendingGuard
	resolver *AccountConflictResolver
	channels map[domain.Channel]*VerificationChannel
	monitor  *expiryMonitor

	mu            sync.Mutex
	gen           uint64
	status        domain.SessionStatus
	role          domain.Role
	account       domain.Account
	token         string
	active        domain.Channel
	mode          domain.AuthMode
	lastErr       error
	transitioning bool
	notices       []domain.Notice
	warnedToken   string
	closed        bool
}

// NewSessionManager builds a manager and hydrates it from deps.Store
func NewSessionManager(ctx context.Context, deps SessionDeps, config SessionConfig) *SessionManager {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.ExpiryWarning <= 0 {
		config.ExpiryWarning = 10 * time.Minute
	}

	m := &SessionManager{
		store:    deps.Store,
		idp:      deps.Identity,
		profiles: deps.Profiles,
		tokens:   deps.Tokens,
		audit:    deps.Audit,
		clock:    deps.Clock,
		config:   config,
		log:      deps.Log,
		guard:    NewPendingGuard(),
		status:   domain.StatusChecking,
	}
	m.resolver = NewAccountConflictResolver(deps.Profiles, deps.Log)

	chCfg := ChannelConfig{ResendCooldown: config.ResendCooldown, EmailLabel: config.EmailLabel}
	m.channels = map[domain.Channel]*VerificationChannel{
		domain.ChannelPhone: NewVerificationChannel(domain.ChannelPhone, deps.Identity, m.guard, deps.Clock, deps.Audit, chCfg, deps.Log),
		domain.ChannelEmail: NewVerificationChannel(domain.ChannelEmail, deps.Identity, m.guard, deps.Clock, deps.Audit, chCfg, deps.Log),
	}
	m.monitor = newExpiryMonitor(deps.Clock, config.ExpiryCheckInterval, func() bool {
		_ = m.CheckTokenExpiry(context.Background())
		return m.Snapshot().Status == domain.StatusAuthenticated
	})

	m.hydrate(ctx)
	return m
}

func (m *SessionManager) hydrate(ctx context.Context) {
	var role domain.Role
	if !readJSON(ctx, m.store, domain.KeySessionRole, &role) || !role.Valid() {
		role = domain.RoleUnset
	}
	var token string
	readJSON(ctx, m.store, domain.KeySessionToken, &token)

	var account domain.Account
	if raw, err := m.store.Get(ctx, domain.KeySessionAccount); err == nil {
		if account, err = domain.DecodeAccount(raw); err != nil {
			m.log.WithError(err).Warn("discarding unreadable stored account")
			account = nil
		}
	}

	m.mu.Lock()
	m.role = role
	if account != nil && token != "" {
		m.status = domain.StatusAuthenticated
		m.account = account
		m.token = token
		m.role = account.AccountRole()
		m.monitor.start()
	} else {
		m.status = domain.StatusUnauthenticated
	}
	authed := m.status == domain.StatusAuthenticated
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"authenticated": authed, "role": role}).Debug("session hydrated")
	if authed {
		_ = m.CheckTokenExpiry(ctx)
	}
}

// Snapshot returns a read-only copy of the session state
func (m *SessionManager) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.Session{
		Role:          m.role,
		Status:        m.status,
		PendingAction: m.guard.Current(),
		LastError:     errString(m.lastErr),
		Transitioning: m.transitioning,
		Account:       m.account,
	}
	if m.account != nil {
		s.UserRef = m.account.AccountID()
	}
	return s
}

// Attempt returns the state of one verification channel
func (m *SessionManager) Attempt(channel domain.Channel) (domain.VerificationAttempt, bool) {
	ch, ok := m.channels[channel]
	if !ok {
		return domain.VerificationAttempt{}, false
	}
	return ch.Snapshot(), true
}

// ActiveChannel returns the channel of the current OTP flow, if any
func (m *SessionManager) ActiveChannel() domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Guard exposes the client's pending-action guard to sibling components
func (m *SessionManager) Guard() *PendingGuard {
	return m.guard
}

// Credentials returns the signed-in account, its token and the current
// generation
func (m *SessionManager) Credentials() (domain.Account, string, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusAuthenticated || m.account == nil {
		return nil, "", m.gen, false
	}
	return m.account, m.token, m.gen, true
}

// Generation changes whenever in-flight results must be discarded
func (m *SessionManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// TakeNotices drains pending informational notices
func (m *SessionManager) TakeNotices() []domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.notices
	m.notices = nil
	return out
}

// ClearError drops lastError after an input change
func (m *SessionManager) ClearError() {
	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()
	for _, ch := range m.channels {
		ch.ClearError()
	}
}

// SelectRole records the provisional role; it survives reloads before login
func (m *SessionManager) SelectRole(ctx context.Context, role domain.Role) error {
	if !role.Valid() {
		return domain.NewValidationError("role")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrClosed
	}
	if m.status == domain.StatusAuthenticated {
		if role == m.role {
			return nil
		}
		return domain.ErrAlreadySignedIn
	}
	if m.guard.Current() != domain.ActionNone {
		return domain.ErrActionInProgress
	}

	data, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("encode role: %w", err)
	}
	if err := m.store.Set(ctx, domain.KeySessionRole, data); err != nil {
		return fmt.Errorf("persist role: %w", err)
	}
	if role != m.role {
		// a challenge sent for the old role was conflict-checked for it only
		m.gen++
		for _, ch := range m.channels {
			ch.Reset()
		}
		m.active = ""
		m.mode = ""
	}
	m.role = role
	m.lastErr = nil
	return nil
}

// SendOTP checks the identifier for conflicts, then starts a challenge on
// channel. Switching channels resets the previous one.
func (m *SessionManager) SendOTP(ctx context.Context, channel domain.Channel, identifier string, mode domain.AuthMode) error {
	if !channel.Valid() {
		return domain.NewValidationError("channel")
	}
	if mode != domain.ModeLogin && mode != domain.ModeSignup {
		return domain.NewValidationError("mode")
	}

	release, err := m.guard.Acquire(domain.ActionCheckingUser)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lastErr = nil
	if m.active != channel {
		if prev, ok := m.channels[m.active]; ok {
			prev.Reset()
		}
		m.active = channel
	}
	if err := ValidateTarget(channel, identifier); err != nil {
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	role := m.role
	if !role.Valid() {
		err := domain.NewValidationError("role")
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	m.mode = mode
	gen := m.gen
	ch := m.channels[channel]
	m.mu.Unlock()

	_, notice, err := m.resolver.Resolve(ctx, identifier, channel, role, mode)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	if err != nil {
		m.lastErr = err
		m.mu.Unlock()
		m.log.WithError(err).WithField("mode", mode).Info("send blocked by account check")
		return err
	}
	if notice != nil {
		m.notices = append(m.notices, *notice)
	}
	m.mu.Unlock()

	m.guard.Retag(domain.ActionCheckingUser, domain.ActionSendingOTP)
	if err := ch.start(ctx, identifier); err != nil {
		m.recordErr(gen, err)
		return err
	}
	return nil
}

// VerifyOTP submits code on the active channel and, on success,
// authenticates with the Profile Service
func (m *SessionManager) VerifyOTP(ctx context.Context, code string) error {
	release, err := m.guard.Acquire(domain.ActionVerifyingOTP)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	ch, ok := m.channels[m.active]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: no challenge in progress", domain.ErrInvalidPhase)
	}
	m.lastErr = nil
	role, mode, gen := m.role, m.mode, m.gen
	m.mu.Unlock()

	tok, err := ch.submit(ctx, code)
	if err != nil {
		m.recordErr(gen, err)
		return err
	}
	return m.finishLogin(ctx, gen, tok, role, mode, "otp_"+string(ch.Channel()))
}

// ResetVerification abandons the current OTP flow
func (m *SessionManager) ResetVerification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	for _, ch := range m.channels {
		ch.Reset()
	}
	m.active = ""
	m.mode = ""
	m.lastErr = nil
}

// LoginWithProvider runs the interactive provider login with credential
// and authenticates under the selected role
func (m *SessionManager) LoginWithProvider(ctx context.Context, credential string) error {
	release, err := m.guard.Acquire(domain.ActionProviderLogin)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	if err := m.readyLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	role := m.role
	if !role.Valid() {
		err := domain.NewValidationError("role")
		m.lastErr = err
		m.mu.Unlock()
		return err
	}
	m.lastErr = nil
	for _, ch := range m.channels {
		ch.Reset()
	}
	m.active = ""
	gen := m.gen
	m.mu.Unlock()

	tok, err := m.idp.InteractiveLogin(ctx, credential)
	if err == nil && tok == nil {
		err = errors.New("provider returned no token")
	}
	if err = mapProviderError(err); err != nil {
		m.recordErr(gen, err)
		if !errors.Is(err, domain.ErrProviderCancelled) {
			_ = m.audit.LogLogin(ctx, "", role, "provider", false, err.Error())
		}
		return err
	}
	return m.finishLogin(ctx, gen, tok, role, domain.ModeProvider, "provider")
}

func (m *SessionManager) finishLogin(ctx context.Context, gen uint64, tok *domain.ProviderToken, role domain.Role, mode domain.AuthMode, method string) error {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	m.transitioning = true
	m.mu.Unlock()

	result, err := m.profiles.Authenticate(ctx, tok.Raw, role, mode)
	if err == nil && (result == nil || result.Account == nil || result.Token == "") {
		err = errors.New("empty authentication result")
	}
	if err = mapProviderError(err); err != nil {
		m.mu.Lock()
		if m.gen == gen {
			m.transitioning = false
			m.lastErr = err
			for _, ch := range m.channels {
				ch.Reset()
			}
		}
		m.mu.Unlock()
		_ = m.audit.LogLogin(ctx, "", role, method, false, err.Error())
		return err
	}
	return m.completeAuth(ctx, &gen, result.Account, result.Token, method)
}

// CompleteAuth is the single place a session becomes authenticated
func (m *SessionManager) CompleteAuth(ctx context.Context, account domain.Account, token string) error {
	return m.completeAuth(ctx, nil, account, token, "direct")
}

func (m *SessionManager) completeAuth(ctx context.Context, gen *uint64, account domain.Account, token, method string) error {
	if account == nil || token == "" {
		return fmt.Errorf("%w: missing account or token", domain.ErrTokenInvalid)
	}
	accountData, err := domain.EncodeAccount(account)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrClosed
	}
	if gen != nil && *gen != m.gen {
		m.mu.Unlock()
		return domain.ErrSuperseded
	}
	role := account.AccountRole()
	if err := m.persistLocked(ctx, accountData, token, role); err != nil {
		m.transitioning = false
		m.mu.Unlock()
		return err
	}
	m.status = domain.StatusAuthenticated
	m.account = account
	m.token = token
	m.role = role
	m.lastErr = nil
	m.transitioning = false
	m.active = ""
	m.mode = ""
	m.warnedToken = ""
	for _, ch := range m.channels {
		ch.Reset()
	}
	m.monitor.start()
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"account_id": account.AccountID(), "role": role, "method": method}).Info("session authenticated")
	_ = m.audit.LogLogin(ctx, account.AccountID(), role, method, true, "")

	return m.CheckTokenExpiry(ctx)
}

func (m *SessionManager) persistLocked(ctx context.Context, accountData []byte, token string, role domain.Role) error {
	tokenData, _ := json.Marshal(token)
	roleData, _ := json.Marshal(role)

	writes := []struct {
		key  string
		data []byte
	}{
		{domain.KeySessionToken, tokenData},
		{domain.KeySessionAccount, accountData},
		{domain.KeySessionRole, roleData},
	}
	for _, w := range writes {
		if err := m.store.Set(ctx, w.key, w.data); err != nil {
			_ = m.store.Delete(ctx, domain.SessionKeys...)
			return fmt.Errorf("persist session: %w", err)
		}
	}
	return nil
}

// ReplaceAccount swaps in a fresher copy of the signed-in account
func (m *SessionManager) ReplaceAccount(ctx context.Context, account domain.Account) error {
	data, err := domain.EncodeAccount(account)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusAuthenticated || m.account == nil || m.account.AccountID() != account.AccountID() {
		return domain.ErrSuperseded
	}
	if err := m.store.Set(ctx, domain.KeySessionAccount, data); err != nil {
		return fmt.Errorf("persist account: %w", err)
	}
	m.account = account
	return nil
}

// Logout clears the session and its persisted keys. Calling it again is
// harmless.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.logoutLocked(ctx, LogoutUser)
	return nil
}

func (m *SessionManager) logoutLocked(ctx context.Context, reason string) {
	wasAuthed := m.status == domain.StatusAuthenticated
	var accountID string
	if m.account != nil {
		accountID = m.account.AccountID()
	}

	m.gen++
	m.guard.Reset()
	m.monitor.stop()
	for _, ch := range m.channels {
		ch.Reset()
	}
	m.status = domain.StatusUnauthenticated
	m.account = nil
	m.token = ""
	m.role = domain.RoleUnset
	m.active = ""
	m.mode = ""
	m.lastErr = nil
	m.transitioning = false
	m.warnedToken = ""

	if err := m.store.Delete(ctx, domain.SessionKeys...); err != nil {
		m.log.WithError(err).Warn("failed to clear persisted session")
	}
	if wasAuthed {
		m.log.WithFields(logrus.Fields{"account_id": accountID, "reason": reason}).Info("session ended")
		_ = m.audit.LogLogout(ctx, accountID, reason)
	}
}

// CheckTokenExpiry decodes the token's exp claim without verifying it.
// An expired or unreadable token logs the client out and returns
// ErrSessionExpired; later calls return nil. A token close to expiry queues
// a warning notice once.
func (m *SessionManager) CheckTokenExpiry(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.status != domain.StatusAuthenticated {
		m.mu.Unlock()
		return nil
	}
	token, gen := m.token, m.gen
	m.mu.Unlock()

	exp, decodeErr := m.tokens.ExpiryOf(token)
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.status != domain.StatusAuthenticated {
		return nil
	}
	if decodeErr != nil || !now.Before(exp) {
		if decodeErr != nil {
			m.log.WithError(decodeErr).Warn("stored token unreadable")
		}
		return m.expireLocked(ctx)
	}
	if left := exp.Sub(now); left <= m.config.ExpiryWarning && m.warnedToken != token {
		m.warnedToken = token
		m.notices = append(m.notices, domain.Notice{
			Kind:    domain.NoticeWarning,
			Code:    domain.NoticeSessionExpiry,
			Message: fmt.Sprintf("Your session expires in %d minutes.", int(left.Round(time.Minute).Minutes())),
		})
	}
	return nil
}

// Expire ends the session after a collaborator reported it expired
func (m *SessionManager) Expire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusAuthenticated {
		return domain.ErrSessionExpired
	}
	return m.expireLocked(ctx)
}

func (m *SessionManager) expireLocked(ctx context.Context) error {
	m.logoutLocked(ctx, LogoutExpired)
	m.lastErr = domain.ErrSessionExpired
	m.notices = append(m.notices, domain.Notice{
		Kind:    domain.NoticeWarning,
		Code:    domain.NoticeSessionEnded,
		Message: "Your session has expired. Please sign in again.",
	})
	return domain.ErrSessionExpired
}

// MonitorRunning reports whether the expiry monitor is scheduled
func (m *SessionManager) MonitorRunning() bool {
	return m.monitor.isRunning()
}

// Close stops background work without touching persisted state
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.guard.Reset()
	m.monitor.stop()
	for _, ch := range m.channels {
		ch.Close()
	}
}

func (m *SessionManager) readyLocked() error {
	if m.closed {
		return domain.ErrClosed
	}
	if m.status == domain.StatusAuthenticated {
		return domain.ErrAlreadySignedIn
	}
	return nil
}

func (m *SessionManager) recordErr(gen uint64, err error) {
	if errors.Is(err, domain.ErrSuperseded) {
		return
	}
	m.mu.Lock()
	if m.gen == gen {
		m.lastErr = err
	}
	m.mu.Unlock()
}

// readJSON decodes key into out; absence or bad data count as no data
func readJSON(ctx context.Context, store domain.Store, key string, out any) bool {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
