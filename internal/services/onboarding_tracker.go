package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// TrackerDeps are the collaborators of an OnboardingTracker
type TrackerDeps struct {
	Session  *SessionManager
	Store    domain.Store
	Identity domain.IdentityProvider
	Profiles domain.ProfileService
	Uploader domain.Uploader
	Audit    domain.AuditLogger
	Clock    domain.Clock
	Log      *logrus.Entry
}

// OnboardingView is what the client renders for the setup wizard
type OnboardingView struct {
	AccountID        string                          `json:"account_id"`
	Steps            []domain.StepStatus             `json:"steps"`
	ActiveStep       domain.StepID                   `json:"active_step,omitempty"`
	Draft            map[domain.StepID]domain.Fields `json:"draft"`
	ProfileCompleted bool                            `json:"profile_completed"`
	ActiveContact    domain.Channel                  `json:"active_contact"`
	Contact          []domain.VerificationAttempt    `json:"contact"`
	LastError        string                          `json:"last_error,omitempty"`
}

type persistedSteps struct {
	AccountID string             `json:"account_id"`
	Steps     []domain.StepState `json:"steps"`
}

type persistedDraft struct {
	AccountID string                          `json:"account_id"`
	Draft     map[domain.StepID]domain.Fields `json:"draft"`
}

// OnboardingTracker drives the four-step artist setup for the account
// signed in on its SessionManager
type OnboardingTracker struct {
	session  *SessionManager
	store    domain.Store
	profiles domain.ProfileService
	uploader domain.Uploader
	audit    domain.AuditLogger
	log      *logrus.Entry
	contact  map[domain.Channel]*VerificationChannel

	mu            sync.Mutex
	progress      *domain.OnboardingProgress
	done          bool
	activeContact domain.Channel
	lastErr       error
}

// NewOnboardingTracker creates a tracker bound to deps.Session
func NewOnboardingTracker(deps TrackerDeps, config SessionConfig) *OnboardingTracker {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	log := deps.Log.WithField("component", "onboarding")
	chCfg := ChannelConfig{ResendCooldown: config.ResendCooldown, EmailLabel: config.EmailLabel}
	guard := deps.Session.Guard()

	return &OnboardingTracker{
		session:  deps.Session,
		store:    deps.Store,
		profiles: deps.Profiles,
		uploader: deps.Uploader,
		audit:    deps.Audit,
		log:      log,
		contact: map[domain.Channel]*VerificationChannel{
			domain.ChannelPhone: NewVerificationChannel(domain.ChannelPhone, deps.Identity, guard, deps.Clock, deps.Audit, chCfg, log),
			domain.ChannelEmail: NewVerificationChannel(domain.ChannelEmail, deps.Identity, guard, deps.Clock, deps.Audit, chCfg, log),
		},
		activeContact: domain.ChannelPhone,
	}
}

func (t *OnboardingTracker) artist() (*domain.ArtistAccount, string, uint64, error) {
	acct, token, gen, ok := t.session.Credentials()
	if !ok {
		return nil, "", 0, domain.ErrNotAuthenticated
	}
	artist, ok := acct.(*domain.ArtistAccount)
	if !ok {
		return nil, "", 0, domain.ErrNotArtist
	}
	return artist, token, gen, nil
}

// LoadOrInit restores progress for the signed-in artist: local store first,
// then the Profile Service record, then a fresh start
func (t *OnboardingTracker) LoadOrInit(ctx context.Context) (*OnboardingView, error) {
	artist, token, gen, err := t.artist()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.loadedFor(artist.ID) {
		v := t.viewLocked()
		t.mu.Unlock()
		return v, nil
	}
	t.resetLocked()
	t.mu.Unlock()

	var p *domain.OnboardingProgress
	done := artist.ProfileCompleted
	if done {
		p = domain.RestoreOnboardingProgress(artist.ID, allCompleted(), nil)
	} else if p = t.loadLocal(ctx, artist.ID); p == nil {
		if p, err = t.loadRemote(ctx, artist, token); err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Generation() != gen {
		return nil, domain.ErrSuperseded
	}
	if !t.loadedFor(artist.ID) {
		t.progress = p
		t.done = done
	}
	return t.viewLocked(), nil
}

func (t *OnboardingTracker) loadLocal(ctx context.Context, accountID string) *domain.OnboardingProgress {
	var steps persistedSteps
	if !readJSON(ctx, t.store, domain.KeyArtistSetupSteps, &steps) || steps.AccountID != accountID {
		return nil
	}
	var draft persistedDraft
	if !readJSON(ctx, t.store, domain.KeyArtistDraft, &draft) || draft.AccountID != accountID {
		draft.Draft = nil
	}
	t.log.WithField("account_id", accountID).Debug("onboarding restored from local store")
	return domain.RestoreOnboardingProgress(accountID, steps.Steps, draft.Draft)
}

func (t *OnboardingTracker) loadRemote(ctx context.Context, artist *domain.ArtistAccount, token string) (*domain.OnboardingProgress, error) {
	remote, err := t.profiles.GetCurrentArtist(ctx, token)
	if err = mapProviderError(err); err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil, t.session.Expire(ctx)
		}
		// the account cached on the session is the last known remote copy
		t.log.WithError(err).Warn("profile service unavailable, using cached onboarding record")
		return domain.RestoreFromRemote(artist.ID, artist.Onboarding), nil
	}
	if remote == nil || remote.ID != artist.ID {
		return domain.NewOnboardingProgress(artist.ID), nil
	}
	return domain.RestoreFromRemote(artist.ID, remote.Onboarding), nil
}

// UpdateDraft merges partial into the step's draft; completion is untouched
func (t *OnboardingTracker) UpdateDraft(ctx context.Context, step domain.StepID, partial domain.Fields) (*OnboardingView, error) {
	return t.mutateDraft(ctx, step, func(p *domain.OnboardingProgress) error {
		return p.MergeDraft(step, partial)
	})
}

// ClearStep empties the step's draft; completion is untouched
func (t *OnboardingTracker) ClearStep(ctx context.Context, step domain.StepID) (*OnboardingView, error) {
	return t.mutateDraft(ctx, step, func(p *domain.OnboardingProgress) error {
		return p.ClearDraft(step)
	})
}

func (t *OnboardingTracker) mutateDraft(ctx context.Context, step domain.StepID, apply func(*domain.OnboardingProgress) error) (*OnboardingView, error) {
	if domain.StepIndex(step) < 0 {
		return nil, domain.ErrUnknownStep
	}
	if _, err := t.LoadOrInit(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress == nil {
		return nil, domain.ErrSuperseded
	}
	if t.done {
		return nil, domain.ErrOnboardingDone
	}
	// submits and uploads read or write the draft while in flight
	switch t.session.Guard().Current() {
	case domain.ActionSubmittingStep, domain.ActionUploading:
		return nil, domain.ErrActionInProgress
	}
	t.lastErr = nil
	if err := apply(t.progress); err != nil {
		return nil, err
	}
	if err := t.persistLocked(ctx); err != nil {
		return nil, err
	}
	return t.viewLocked(), nil
}

// SubmitStep validates the step's draft, saves it upstream and completes
// the step. Submitting the last step marks the profile complete and drops
// the local copy.
func (t *OnboardingTracker) SubmitStep(ctx context.Context, step domain.StepID) (*OnboardingView, error) {
	if domain.StepIndex(step) < 0 {
		return nil, domain.ErrUnknownStep
	}
	release, err := t.session.Guard().Acquire(domain.ActionSubmittingStep)
	if err != nil {
		return nil, err
	}
	defer release()

	artist, token, gen, err := t.artist()
	if err != nil {
		return nil, err
	}
	if _, err := t.LoadOrInit(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if !t.loadedFor(artist.ID) {
		t.mu.Unlock()
		return nil, domain.ErrSuperseded
	}
	if t.done {
		t.mu.Unlock()
		return nil, domain.ErrOnboardingDone
	}
	switch t.progress.StateOf(step) {
	case domain.StepCompleted:
		v := t.viewLocked()
		t.mu.Unlock()
		return v, nil
	case domain.StepLocked:
		t.mu.Unlock()
		return nil, domain.ErrStepLocked
	}
	fields := t.progress.Draft(step)
	if err := ValidateStep(step, fields, t.proofLocked(artist)); err != nil {
		t.lastErr = err
		t.mu.Unlock()
		return nil, err
	}
	t.lastErr = nil
	final := step == domain.Steps[len(domain.Steps)-1]
	t.mu.Unlock()

	updated, err := t.profiles.CompleteArtistStep(ctx, token, step, fields, final)
	if err = mapProviderError(err); err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return nil, t.session.Expire(ctx)
		}
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Generation() != gen || !t.loadedFor(artist.ID) {
		return nil, domain.ErrSuperseded
	}
	if err := t.progress.MarkCompleted(step); err != nil {
		return nil, err
	}

	if final {
		t.done = true
		for _, ch := range t.contact {
			ch.Reset()
		}
		if err := t.store.Delete(ctx, domain.KeyArtistSetupSteps, domain.KeyArtistDraft); err != nil {
			t.log.WithError(err).Warn("failed to drop local onboarding state")
		}
	} else if err := t.persistLocked(ctx); err != nil {
		return nil, err
	}

	if updated == nil || updated.AccountID() != artist.ID {
		cp := *artist
		cp.ProfileCompleted = artist.ProfileCompleted || final
		updated = &cp
	}
	if err := t.session.ReplaceAccount(ctx, updated); err != nil {
		t.log.WithError(err).Warn("could not refresh session account")
	}

	t.log.WithFields(logrus.Fields{"account_id": artist.ID, "step": step, "final": final}).Info("onboarding step completed")
	_ = t.audit.LogStepCompleted(ctx, artist.ID, step, final)
	return t.viewLocked(), nil
}

// Upload stores file through the upload collaborator and merges the
// resulting URL into the draft
func (t *OnboardingTracker) Upload(ctx context.Context, category domain.UploadCategory, file domain.UploadFile) (string, *OnboardingView, error) {
	step, field, multi, ok := uploadTarget(category)
	if !ok {
		return "", nil, domain.NewValidationError("category")
	}
	release, err := t.session.Guard().Acquire(domain.ActionUploading)
	if err != nil {
		return "", nil, err
	}
	defer release()

	artist, _, gen, err := t.artist()
	if err != nil {
		return "", nil, err
	}
	if _, err := t.LoadOrInit(ctx); err != nil {
		return "", nil, err
	}
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return "", nil, domain.ErrOnboardingDone
	}

	url, err := t.uploader.Upload(ctx, file, category)
	if err = mapProviderError(err); err != nil {
		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		return "", nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Generation() != gen || !t.loadedFor(artist.ID) {
		return "", nil, domain.ErrSuperseded
	}
	value := any(url)
	if multi {
		value = appendURL(t.progress.Draft(step)[field], url)
	}
	if err := t.progress.MergeDraft(step, domain.Fields{field: value}); err != nil {
		return "", nil, err
	}
	if err := t.persistLocked(ctx); err != nil {
		return "", nil, err
	}
	return url, t.viewLocked(), nil
}

// SendContactOTP starts verifying the artist's phone or email for step one
func (t *OnboardingTracker) SendContactOTP(ctx context.Context, channel domain.Channel, target string) error {
	if !channel.Valid() {
		return domain.NewValidationError("channel")
	}
	if _, err := t.LoadOrInit(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return domain.ErrOnboardingDone
	}
	if t.activeContact != channel {
		t.contact[t.activeContact].Reset()
		t.activeContact = channel
	}
	ch := t.contact[channel]
	t.mu.Unlock()

	return ch.StartChallenge(ctx, target)
}

// VerifyContactOTP confirms the code sent by SendContactOTP
func (t *OnboardingTracker) VerifyContactOTP(ctx context.Context, code string) error {
	if _, err := t.LoadOrInit(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	ch := t.contact[t.activeContact]
	t.mu.Unlock()

	_, err := ch.SubmitCode(ctx, code)
	return err
}

// View returns the current state without loading
func (t *OnboardingTracker) View() *OnboardingView {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress == nil {
		return nil
	}
	return t.viewLocked()
}

// Close cancels contact countdowns
func (t *OnboardingTracker) Close() {
	for _, ch := range t.contact {
		ch.Close()
	}
}

func (t *OnboardingTracker) loadedFor(accountID string) bool {
	return t.progress != nil && t.progress.AccountID == accountID
}

func (t *OnboardingTracker) resetLocked() {
	t.progress = nil
	t.done = false
	t.lastErr = nil
	t.activeContact = domain.ChannelPhone
	for _, ch := range t.contact {
		ch.Reset()
	}
}

func (t *OnboardingTracker) proofLocked(artist *domain.ArtistAccount) ContactProof {
	proof := ContactProof{Active: t.activeContact, Verified: map[domain.Channel][]string{}}
	if artist.Phone != "" {
		proof.Verified[domain.ChannelPhone] = append(proof.Verified[domain.ChannelPhone], artist.Phone)
	}
	if artist.Email != "" {
		proof.Verified[domain.ChannelEmail] = append(proof.Verified[domain.ChannelEmail], artist.Email)
	}
	for channel, ch := range t.contact {
		if target, ok := ch.Verified(); ok {
			proof.Verified[channel] = append(proof.Verified[channel], target)
		}
	}
	return proof
}

func (t *OnboardingTracker) persistLocked(ctx context.Context) error {
	steps, err := json.Marshal(persistedSteps{AccountID: t.progress.AccountID, Steps: t.progress.States()})
	if err != nil {
		return err
	}
	draft, err := json.Marshal(persistedDraft{AccountID: t.progress.AccountID, Draft: t.progress.DraftAll()})
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, domain.KeyArtistSetupSteps, steps); err != nil {
		return fmt.Errorf("persist onboarding steps: %w", err)
	}
	if err := t.store.Set(ctx, domain.KeyArtistDraft, draft); err != nil {
		return fmt.Errorf("persist onboarding draft: %w", err)
	}
	return nil
}

func (t *OnboardingTracker) viewLocked() *OnboardingView {
	v := &OnboardingView{
		AccountID:        t.progress.AccountID,
		Steps:            t.progress.Steps(),
		Draft:            t.progress.DraftAll(),
		ProfileCompleted: t.done,
		ActiveContact:    t.activeContact,
		LastError:        errString(t.lastErr),
	}
	if active, ok := t.progress.ActiveStep(); ok {
		v.ActiveStep = active
	}
	for _, channel := range []domain.Channel{domain.ChannelPhone, domain.ChannelEmail} {
		v.Contact = append(v.Contact, t.contact[channel].Snapshot())
	}
	return v
}

func uploadTarget(category domain.UploadCategory) (domain.StepID, string, bool, bool) {
	switch category {
	case domain.UploadProfilePicture:
		return domain.StepPersonalDetails, "profilePicture", false, true
	case domain.UploadCertificate:
		return domain.StepPersonalDetails, "certificates", true, true
	case domain.UploadPortfolio:
		return domain.StepPortfolio, "portfolio", true, true
	}
	return "", "", false, false
}

func appendURL(existing any, url string) []any {
	var out []any
	switch v := existing.(type) {
	case []any:
		out = append(out, v...)
	case []string:
		for _, s := range v {
			out = append(out, s)
		}
	case string:
		if v != "" {
			out = append(out, v)
		}
	}
	return append(out, url)
}

func allCompleted() []domain.StepState {
	out := make([]domain.StepState, len(domain.Steps))
	for i := range out {
		out[i] = domain.StepCompleted
	}
	return out
}
