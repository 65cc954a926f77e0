package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/mocks"
)

// signedInTracker returns a tracker for an artist signed in on a fresh
// manager
func signedInTracker(t *testing.T, h *harness, artist *domain.ArtistAccount) (*SessionManager, *OnboardingTracker) {
	t.Helper()

	m := h.manager(t)
	signIn(t, m, artist)
	return m, h.tracker(t, m)
}

func seedLocalProgress(t *testing.T, h *harness, accountID string, states []domain.StepState, draft map[domain.StepID]domain.Fields) {
	t.Helper()

	steps, _ := json.Marshal(persistedSteps{AccountID: accountID, Steps: states})
	d, _ := json.Marshal(persistedDraft{AccountID: accountID, Draft: draft})
	h.store.Put(domain.KeyArtistSetupSteps, string(steps))
	h.store.Put(domain.KeyArtistDraft, string(d))
}

func stateList(view *OnboardingView) []domain.StepState {
	out := make([]domain.StepState, len(view.Steps))
	for i, s := range view.Steps {
		out[i] = s.State
	}
	return out
}

// assertGating checks that no step is active or completed after a step
// that is not completed
func assertGating(t *testing.T, view *OnboardingView) {
	t.Helper()

	for k := 1; k < len(view.Steps); k++ {
		if view.Steps[k].State != domain.StepLocked && view.Steps[k-1].State != domain.StepCompleted {
			t.Fatalf("step %s is %s while %s is %s", view.Steps[k].ID, view.Steps[k].State, view.Steps[k-1].ID, view.Steps[k-1].State)
		}
	}
}

func TestOnboardingTracker_RequiresArtist(t *testing.T) {
	ctx := context.Background()

	t.Run("signed out", func(t *testing.T) {
		h := newHarness(t)
		tr := h.tracker(t, h.manager(t))
		if _, err := tr.LoadOrInit(ctx); !errors.Is(err, domain.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("customer", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t)
		signIn(t, m, createTestCustomer(t))
		tr := h.tracker(t, m)
		if _, err := tr.LoadOrInit(ctx); !errors.Is(err, domain.ErrNotArtist) {
			t.Errorf("expected ErrNotArtist, got %v", err)
		}
	})
}

func TestOnboardingTracker_FreshStart(t *testing.T) {
	h := newHarness(t)
	_, tr := signedInTracker(t, h, createTestArtist(t))

	view, err := tr.LoadOrInit(context.Background())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}

	expected := []domain.StepState{domain.StepActive, domain.StepLocked, domain.StepLocked, domain.StepLocked}
	if got := stateList(view); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	if view.ActiveStep != domain.StepPersonalDetails {
		t.Errorf("expected active %s, got %s", domain.StepPersonalDetails, view.ActiveStep)
	}
}

func TestOnboardingTracker_StepGating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, tr := signedInTracker(t, h, createTestArtist(t))

	for _, step := range domain.Steps[1:] {
		if _, err := tr.SubmitStep(ctx, step); !errors.Is(err, domain.ErrStepLocked) {
			t.Errorf("%s: expected ErrStepLocked, got %v", step, err)
		}
	}
	if len(h.profiles.StepCalls()) != 0 {
		t.Error("locked steps must not reach the Profile Service")
	}
	if _, err := tr.SubmitStep(ctx, "payments"); !errors.Is(err, domain.ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

func TestOnboardingTracker_FullFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, tr := signedInTracker(t, h, createTestArtist(t))

	drafts := []struct {
		step   domain.StepID
		fields domain.Fields
	}{
		{domain.StepPersonalDetails, validPersonalDetails()},
		{domain.StepBookingModes, validBookingModes()},
		{domain.StepPortfolio, validPortfolio()},
		{domain.StepBankDetails, validBankDetails()},
	}

	var view *OnboardingView
	for i, d := range drafts {
		if _, err := tr.UpdateDraft(ctx, d.step, d.fields); err != nil {
			t.Fatalf("UpdateDraft(%s): %v", d.step, err)
		}
		var err error
		view, err = tr.SubmitStep(ctx, d.step)
		if err != nil {
			t.Fatalf("SubmitStep(%s): %v", d.step, err)
		}
		assertGating(t, view)
		if i < len(drafts)-1 {
			if view.ActiveStep != drafts[i+1].step {
				t.Errorf("expected %s active, got %s", drafts[i+1].step, view.ActiveStep)
			}
			if NewRouteGuard().CanEnter(m.Snapshot(), ProfileCompleted(m.Snapshot())).Allow {
				t.Error("artist must stay in onboarding until the last step")
			}
		}
	}

	calls := h.profiles.StepCalls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 Profile Service calls, got %d", len(calls))
	}
	for i, c := range calls {
		if c.MarkComplete != (i == 3) {
			t.Errorf("call %d (%s): markComplete=%v", i, c.Step, c.MarkComplete)
		}
		if c.Token != "session-token" {
			t.Errorf("expected session token, got %s", c.Token)
		}
	}

	if !view.ProfileCompleted || view.ActiveStep != "" {
		t.Errorf("expected completed profile, got %+v", view)
	}
	if _, ok := h.store.Raw(domain.KeyArtistSetupSteps); ok {
		t.Error("local progress should be discarded after the last step")
	}
	if !ProfileCompleted(m.Snapshot()) {
		t.Error("session account should carry the completed flag")
	}
	if !NewRouteGuard().CanEnter(m.Snapshot(), ProfileCompleted(m.Snapshot())).Allow {
		t.Error("completed artist should be allowed in")
	}
	if h.audit.Count(domain.ProfileCompletedEvent) != 1 || h.audit.Count(domain.StepCompletedEvent) != 3 {
		t.Error("unexpected onboarding audit events")
	}
	if _, err := tr.UpdateDraft(ctx, domain.StepBankDetails, domain.Fields{"bankName": "Z"}); !errors.Is(err, domain.ErrOnboardingDone) {
		t.Errorf("expected ErrOnboardingDone, got %v", err)
	}
}

func TestOnboardingTracker_BankDetails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedLocalProgress(t, h, "artist-1",
		[]domain.StepState{domain.StepCompleted, domain.StepCompleted, domain.StepCompleted, domain.StepActive}, nil)
	_, tr := signedInTracker(t, h, createTestArtist(t))

	mismatch := domain.Fields{"accountNumber": "123", "confirmAccountNumber": "124", "bankName": "X", "ifscCode": "Y"}
	if _, err := tr.UpdateDraft(ctx, domain.StepBankDetails, mismatch); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	_, err := tr.SubmitStep(ctx, domain.StepBankDetails)
	if field, _ := domain.FieldOf(err); field != "confirmAccountNumber" {
		t.Fatalf("expected ValidationFailed(confirmAccountNumber), got %v", err)
	}
	if len(h.profiles.StepCalls()) != 0 {
		t.Error("validation failures are local")
	}
	if tr.View().LastError == "" {
		t.Error("expected lastError on the view")
	}

	view, err := tr.UpdateDraft(ctx, domain.StepBankDetails, domain.Fields{"confirmAccountNumber": "123"})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if view.LastError != "" {
		t.Error("editing the draft should clear the error")
	}
	view, err = tr.SubmitStep(ctx, domain.StepBankDetails)
	if err != nil {
		t.Fatalf("corrected bank details: %v", err)
	}
	if !view.ProfileCompleted {
		t.Error("bank details is the last step")
	}
}

func TestOnboardingTracker_RestoreFromRemote(t *testing.T) {
	remote := &domain.ArtistOnboarding{
		CompletedSteps: []domain.StepID{domain.StepPersonalDetails, domain.StepBookingModes},
		Fields: map[domain.StepID]domain.Fields{
			domain.StepPersonalDetails: validPersonalDetails(),
			domain.StepBookingModes:    validBookingModes(),
			domain.StepPortfolio:       {"portfolio": []any{"https://cdn.test/portfolio/9.jpg"}},
		},
	}

	tests := []struct {
		name  string
		local func(t *testing.T, h *harness)
	}{
		{name: "empty local store", local: func(t *testing.T, h *harness) {}},
		{
			name: "unparsable local store",
			local: func(t *testing.T, h *harness) {
				h.store.Put(domain.KeyArtistSetupSteps, "{broken")
			},
		},
		{
			name: "local store of another account",
			local: func(t *testing.T, h *harness) {
				seedLocalProgress(t, h, "artist-2", []domain.StepState{domain.StepCompleted}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.local(t, h)
			h.profiles.GetCurrentArtistFunc = func(ctx context.Context, token string) (*domain.ArtistAccount, error) {
				a := createTestArtist(t)
				a.Onboarding = remote
				return a, nil
			}
			_, tr := signedInTracker(t, h, createTestArtist(t))

			view, err := tr.LoadOrInit(context.Background())
			if err != nil {
				t.Fatalf("LoadOrInit: %v", err)
			}

			expected := domain.RestoreFromRemote("artist-1", remote)
			if !reflect.DeepEqual(view.Steps, expected.Steps()) {
				t.Errorf("steps: expected %v, got %v", expected.Steps(), view.Steps)
			}
			if !reflect.DeepEqual(view.Draft, expected.DraftAll()) {
				t.Errorf("draft: expected %v, got %v", expected.DraftAll(), view.Draft)
			}
			if view.ActiveStep != domain.StepPortfolio {
				t.Errorf("expected portfolio active, got %s", view.ActiveStep)
			}
		})
	}
}

func TestOnboardingTracker_LocalWinsOverRemote(t *testing.T) {
	h := newHarness(t)
	seedLocalProgress(t, h, "artist-1",
		[]domain.StepState{domain.StepCompleted, domain.StepActive, domain.StepLocked, domain.StepLocked},
		map[domain.StepID]domain.Fields{domain.StepBookingModes: {"studioAddress": "draft address"}})
	h.profiles.GetCurrentArtistFunc = func(ctx context.Context, token string) (*domain.ArtistAccount, error) {
		t.Error("remote record should not be fetched when local state is usable")
		return nil, nil
	}
	_, tr := signedInTracker(t, h, createTestArtist(t))

	view, err := tr.LoadOrInit(context.Background())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if view.ActiveStep != domain.StepBookingModes {
		t.Errorf("expected booking-modes active, got %s", view.ActiveStep)
	}
	if view.Draft[domain.StepBookingModes]["studioAddress"] != "draft address" {
		t.Errorf("expected local draft, got %v", view.Draft)
	}
}

func TestOnboardingTracker_RemoteUnavailable(t *testing.T) {
	h := newHarness(t)
	h.profiles.GetCurrentArtistFunc = func(ctx context.Context, token string) (*domain.ArtistAccount, error) {
		return nil, errors.New("503")
	}
	artist := createTestArtist(t)
	artist.Onboarding = &domain.ArtistOnboarding{CompletedSteps: []domain.StepID{domain.StepPersonalDetails}}
	_, tr := signedInTracker(t, h, artist)

	view, err := tr.LoadOrInit(context.Background())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if view.ActiveStep != domain.StepBookingModes {
		t.Errorf("expected the cached account record to be used, got %s", view.ActiveStep)
	}
}

func TestOnboardingTracker_DraftEditsKeepCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedLocalProgress(t, h, "artist-1",
		[]domain.StepState{domain.StepCompleted, domain.StepActive, domain.StepLocked, domain.StepLocked},
		map[domain.StepID]domain.Fields{domain.StepPersonalDetails: validPersonalDetails()})
	_, tr := signedInTracker(t, h, createTestArtist(t))

	before, err := tr.LoadOrInit(ctx)
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}

	view, err := tr.UpdateDraft(ctx, domain.StepPortfolio, domain.Fields{"portfolio": []any{"https://cdn.test/a.jpg"}})
	if err != nil {
		t.Fatalf("UpdateDraft on a locked step: %v", err)
	}
	if !reflect.DeepEqual(view.Steps, before.Steps) {
		t.Error("draft edits must not change completion")
	}

	view, err = tr.ClearStep(ctx, domain.StepPersonalDetails)
	if err != nil {
		t.Fatalf("ClearStep: %v", err)
	}
	if len(view.Draft[domain.StepPersonalDetails]) != 0 {
		t.Error("personal details draft should be empty")
	}
	if len(view.Draft[domain.StepPortfolio]) != 1 {
		t.Error("other drafts must survive ClearStep")
	}
	if !reflect.DeepEqual(view.Steps, before.Steps) {
		t.Error("ClearStep must not change completion")
	}

	var persisted persistedDraft
	raw, _ := h.store.Raw(domain.KeyArtistDraft)
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil || persisted.AccountID != "artist-1" {
		t.Errorf("expected persisted draft tagged with the account, got %s", raw)
	}
}

func TestOnboardingTracker_Uploads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	seedLocalProgress(t, h, "artist-1",
		[]domain.StepState{domain.StepCompleted, domain.StepCompleted, domain.StepActive, domain.StepLocked}, nil)
	_, tr := signedInTracker(t, h, createTestArtist(t))

	file := domain.UploadFile{Name: "look.jpg", ContentType: "image/jpeg", Size: 1024, Data: []byte{0xff, 0xd8, 0xff}}
	for i := 0; i < 2; i++ {
		if _, _, err := tr.Upload(ctx, domain.UploadPortfolio, file); err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
	}
	url, view, err := tr.Upload(ctx, domain.UploadProfilePicture, file)
	if err != nil {
		t.Fatalf("profile picture: %v", err)
	}

	if got := view.Draft[domain.StepPortfolio]["portfolio"]; len(got.([]any)) != 2 {
		t.Errorf("expected two portfolio urls, got %v", got)
	}
	if view.Draft[domain.StepPersonalDetails]["profilePicture"] != url {
		t.Errorf("expected profile picture url %s in draft", url)
	}
	if _, err := tr.SubmitStep(ctx, domain.StepPortfolio); err != nil {
		t.Errorf("portfolio with uploads should validate: %v", err)
	}

	h.uploader.UploadFunc = func(ctx context.Context, f domain.UploadFile, c domain.UploadCategory) (string, error) {
		return "", domain.ErrUploadRejected
	}
	if _, _, err := tr.Upload(ctx, domain.UploadCertificate, file); !errors.Is(err, domain.ErrUploadRejected) {
		t.Errorf("expected ErrUploadRejected, got %v", err)
	}
	if _, _, err := tr.Upload(ctx, "avatar", file); err == nil {
		t.Error("unknown category should be rejected")
	}
}

func TestOnboardingTracker_ContactVerification(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	artist := createTestArtist(t)
	artist.Phone = "+911111111111"
	_, tr := signedInTracker(t, h, artist)

	if _, err := tr.UpdateDraft(ctx, domain.StepPersonalDetails, validPersonalDetails()); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	_, err := tr.SubmitStep(ctx, domain.StepPersonalDetails)
	if field, _ := domain.FieldOf(err); field != "phone" {
		t.Fatalf("expected ValidationFailed(phone) before verification, got %v", err)
	}

	if err := tr.SendContactOTP(ctx, domain.ChannelPhone, testPhone); err != nil {
		t.Fatalf("SendContactOTP: %v", err)
	}
	if err := tr.VerifyContactOTP(ctx, "000000"); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if err := tr.VerifyContactOTP(ctx, mocks.ValidTestCode); err != nil {
		t.Fatalf("VerifyContactOTP: %v", err)
	}

	view, err := tr.SubmitStep(ctx, domain.StepPersonalDetails)
	if err != nil {
		t.Fatalf("SubmitStep after verification: %v", err)
	}
	if view.Contact[0].Phase != domain.PhaseVerified {
		t.Errorf("expected phone contact verified, got %s", view.Contact[0].Phase)
	}
}

func TestOnboardingTracker_SessionExpiredDuringSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.profiles.CompleteArtistStepFunc = func(ctx context.Context, token string, step domain.StepID, fields domain.Fields, markComplete bool) (domain.Account, error) {
		return nil, domain.ErrTokenExpired
	}
	m, tr := signedInTracker(t, h, createTestArtist(t))
	if _, err := tr.UpdateDraft(ctx, domain.StepPersonalDetails, validPersonalDetails()); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	_, err := tr.SubmitStep(ctx, domain.StepPersonalDetails)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if m.Snapshot().Authenticated() {
		t.Error("an expired session must be logged out")
	}
	if _, ok := h.store.Raw(domain.KeyArtistDraft); !ok {
		t.Error("draft survives the logout for the next sign in")
	}
}

func TestOnboardingTracker_SubmitWhileBusy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m, tr := signedInTracker(t, h, createTestArtist(t))

	release, err := m.Guard().Acquire(domain.ActionUploading)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := tr.SubmitStep(ctx, domain.StepPersonalDetails); !errors.Is(err, domain.ErrActionInProgress) {
		t.Errorf("expected ErrActionInProgress, got %v", err)
	}
}

func TestOnboardingTracker_DraftLockedDuringSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	var tr *OnboardingTracker
	var clearErr, updateErr error
	h.profiles.CompleteArtistStepFunc = func(ctx context.Context, token string, step domain.StepID, fields domain.Fields, markComplete bool) (domain.Account, error) {
		_, clearErr = tr.ClearStep(ctx, step)
		_, updateErr = tr.UpdateDraft(ctx, step, domain.Fields{"bio": "changed mid-submit"})
		return nil, nil
	}
	_, tr = signedInTracker(t, h, createTestArtist(t))
	if _, err := tr.UpdateDraft(ctx, domain.StepPersonalDetails, validPersonalDetails()); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	view, err := tr.SubmitStep(ctx, domain.StepPersonalDetails)
	if err != nil {
		t.Fatalf("SubmitStep: %v", err)
	}
	if !errors.Is(clearErr, domain.ErrActionInProgress) || !errors.Is(updateErr, domain.ErrActionInProgress) {
		t.Errorf("expected draft edits rejected while submitting, got %v / %v", clearErr, updateErr)
	}
	if got := view.Draft[domain.StepPersonalDetails]["bio"]; got != validPersonalDetails()["bio"] {
		t.Errorf("submitted draft changed underneath the submit: %v", got)
	}

	if _, err := tr.UpdateDraft(ctx, domain.StepBookingModes, domain.Fields{"modes": []any{"home"}}); err != nil {
		t.Errorf("draft edits resume after the submit: %v", err)
	}
}

func TestOnboardingTracker_CompletedAccountSkipsRestore(t *testing.T) {
	h := newHarness(t)
	artist := createTestArtist(t)
	artist.ProfileCompleted = true
	h.profiles.GetCurrentArtistFunc = func(ctx context.Context, token string) (*domain.ArtistAccount, error) {
		t.Error("no restore needed for a completed profile")
		return nil, nil
	}
	_, tr := signedInTracker(t, h, artist)

	view, err := tr.LoadOrInit(context.Background())
	if err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	if !view.ProfileCompleted {
		t.Error("expected completed view")
	}
}
