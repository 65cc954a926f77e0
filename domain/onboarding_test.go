package domain

import (
	"errors"
	"reflect"
	"testing"
)

// assertPrefixInvariant checks that step k+1 is never active while step k is not completed
func assertPrefixInvariant(t *testing.T, p *OnboardingProgress) {
	t.Helper()
	states := p.States()
	active := 0
	for i, s := range states {
		if s == StepActive {
			active++
			for j := 0; j < i; j++ {
				if states[j] != StepCompleted {
					t.Fatalf("step %d active while step %d is %s", i, j, states[j])
				}
			}
		}
		if s == StepCompleted && i > 0 && states[i-1] != StepCompleted {
			t.Fatalf("step %d completed after a non-completed step", i)
		}
	}
	if active > 1 {
		t.Fatalf("expected at most one active step, got %d", active)
	}
}

func TestNewOnboardingProgress(t *testing.T) {
	p := NewOnboardingProgress("a-1")

	want := []StepState{StepActive, StepLocked, StepLocked, StepLocked}
	if got := p.States(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	active, ok := p.ActiveStep()
	if !ok || active != StepPersonalDetails {
		t.Errorf("expected personal-details active, got %q", active)
	}
}

func TestMarkCompleted_Gating(t *testing.T) {
	p := NewOnboardingProgress("a-1")

	if err := p.MarkCompleted(StepPortfolio); !errors.Is(err, ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked, got %v", err)
	}
	if err := p.MarkCompleted("payments"); !errors.Is(err, ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}

	for _, id := range Steps {
		if err := p.MarkCompleted(id); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
		assertPrefixInvariant(t, p)
	}

	if !p.Complete() {
		t.Error("expected all steps completed")
	}
	if _, ok := p.ActiveStep(); ok {
		t.Error("no step should be active once complete")
	}

	// completing again never regresses
	if err := p.MarkCompleted(StepPersonalDetails); err != nil {
		t.Errorf("re-completing should be a no-op, got %v", err)
	}
}

func TestRestoreOnboardingProgress_Normalizes(t *testing.T) {
	tests := []struct {
		name   string
		states []StepState
		want   []StepState
	}{
		{
			name:   "empty",
			states: nil,
			want:   []StepState{StepActive, StepLocked, StepLocked, StepLocked},
		},
		{
			name:   "gap after first",
			states: []StepState{StepCompleted, StepLocked, StepCompleted, StepCompleted},
			want:   []StepState{StepCompleted, StepActive, StepLocked, StepLocked},
		},
		{
			name:   "stored active ignored",
			states: []StepState{StepCompleted, StepCompleted, StepActive, StepActive},
			want:   []StepState{StepCompleted, StepCompleted, StepActive, StepLocked},
		},
		{
			name:   "too long",
			states: []StepState{StepCompleted, StepCompleted, StepCompleted, StepCompleted, StepCompleted},
			want:   []StepState{StepCompleted, StepCompleted, StepCompleted, StepCompleted},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RestoreOnboardingProgress("a-1", tt.states, nil)
			if got := p.States(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			assertPrefixInvariant(t, p)
		})
	}
}

func TestRestoreFromRemote(t *testing.T) {
	remote := &ArtistOnboarding{
		CompletedSteps: []StepID{StepPersonalDetails, StepBookingModes},
		Fields: map[StepID]Fields{
			StepPersonalDetails: {"fullName": "Asha"},
			StepPortfolio:       {"portfolio": []any{"https://cdn/x.png"}},
			"unknown":           {"x": 1},
		},
	}

	p := RestoreFromRemote("a-1", remote)

	want := []StepState{StepCompleted, StepCompleted, StepActive, StepLocked}
	if got := p.States(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := p.Draft(StepPersonalDetails)["fullName"]; got != "Asha" {
		t.Errorf("expected restored draft, got %v", got)
	}
	if _, ok := p.DraftAll()["unknown"]; ok {
		t.Error("unknown steps must be dropped from the draft")
	}
}

func TestDraftMutationsLeaveCompletion(t *testing.T) {
	p := NewOnboardingProgress("a-1")
	if err := p.MarkCompleted(StepPersonalDetails); err != nil {
		t.Fatal(err)
	}

	if err := p.MergeDraft(StepPersonalDetails, Fields{"bio": "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := p.MergeDraft(StepPersonalDetails, Fields{"gender": "female"}); err != nil {
		t.Fatal(err)
	}
	d := p.Draft(StepPersonalDetails)
	if d["bio"] != "hi" || d["gender"] != "female" {
		t.Errorf("merge lost fields: %v", d)
	}

	if err := p.ClearDraft(StepPersonalDetails); err != nil {
		t.Fatal(err)
	}
	if len(p.Draft(StepPersonalDetails)) != 0 {
		t.Error("expected empty draft after clear")
	}
	if p.StateOf(StepPersonalDetails) != StepCompleted {
		t.Error("clearing a draft must not touch completion")
	}

	// returned drafts are copies
	d = p.Draft(StepBookingModes)
	d["modes"] = []string{"home"}
	if len(p.Draft(StepBookingModes)) != 0 {
		t.Error("Draft should return a copy")
	}
}
