package domain

// StepID names one of the ordered artist setup stages
type StepID string

const (
	StepPersonalDetails StepID = "personal-details"
	StepBookingModes    StepID = "booking-modes"
	StepPortfolio       StepID = "portfolio"
	StepBankDetails     StepID = "bank-details"
)

// Steps is the fixed onboarding order
var Steps = []StepID{StepPersonalDetails, StepBookingModes, StepPortfolio, StepBankDetails}

// StepIndex returns the position of id in Steps, or -1
func StepIndex(id StepID) int {
	for i, s := range Steps {
		if s == id {
			return i
		}
	}
	return -1
}

// StepState is the gating state of a step
type StepState string

const (
	StepLocked    StepState = "locked"
	StepActive    StepState = "active"
	StepCompleted StepState = "completed"
)

// StepStatus pairs a step with its derived state
type StepStatus struct {
	ID    StepID    `json:"id"`
	State StepState `json:"state"`
}

// Fields is free-form form state for one step
type Fields map[string]any

// Clone copies f, including slice values
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case []any:
			out[k] = append([]any(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// OnboardingProgress holds step completion and the per-step draft.
// Completion is stored as the length of the completed prefix, so the
// active step and every locked step are always derived from it.
type OnboardingProgress struct {
	AccountID string
	completed int
	draft     map[StepID]Fields
}

// NewOnboardingProgress returns progress with only the first step active
func NewOnboardingProgress(accountID string) *OnboardingProgress {
	return &OnboardingProgress{AccountID: accountID, draft: make(map[StepID]Fields)}
}

// RestoreOnboardingProgress rebuilds progress from persisted step states.
// Only the leading run of completed steps counts; a completed step after a
// gap is treated as not completed.
func RestoreOnboardingProgress(accountID string, states []StepState, draft map[StepID]Fields) *OnboardingProgress {
	p := NewOnboardingProgress(accountID)
	for i := 0; i < len(states) && i < len(Steps); i++ {
		if states[i] != StepCompleted {
			break
		}
		p.completed++
	}
	p.setDraft(draft)
	return p
}

// RestoreFromRemote rebuilds progress from a Profile Service record
func RestoreFromRemote(accountID string, remote *ArtistOnboarding) *OnboardingProgress {
	if remote == nil {
		return NewOnboardingProgress(accountID)
	}
	done := make(map[StepID]bool, len(remote.CompletedSteps))
	for _, id := range remote.CompletedSteps {
		done[id] = true
	}
	states := make([]StepState, len(Steps))
	for i, id := range Steps {
		if done[id] {
			states[i] = StepCompleted
		}
	}
	return RestoreOnboardingProgress(accountID, states, remote.Fields)
}

func (p *OnboardingProgress) setDraft(draft map[StepID]Fields) {
	for id, f := range draft {
		if StepIndex(id) < 0 {
			continue
		}
		p.draft[id] = f.Clone()
	}
}

// Steps returns every step with its derived state
func (p *OnboardingProgress) Steps() []StepStatus {
	out := make([]StepStatus, len(Steps))
	for i, id := range Steps {
		out[i] = StepStatus{ID: id, State: p.stateAt(i)}
	}
	return out
}

// States returns the derived state list in step order
func (p *OnboardingProgress) States() []StepState {
	out := make([]StepState, len(Steps))
	for i := range Steps {
		out[i] = p.stateAt(i)
	}
	return out
}

func (p *OnboardingProgress) stateAt(i int) StepState {
	switch {
	case i < p.completed:
		return StepCompleted
	case i == p.completed:
		return StepActive
	default:
		return StepLocked
	}
}

// StateOf returns the derived state of id
func (p *OnboardingProgress) StateOf(id StepID) StepState {
	i := StepIndex(id)
	if i < 0 {
		return StepLocked
	}
	return p.stateAt(i)
}

// ActiveStep returns the first non-completed step
func (p *OnboardingProgress) ActiveStep() (StepID, bool) {
	if p.completed >= len(Steps) {
		return "", false
	}
	return Steps[p.completed], true
}

// CompletedSteps lists completed step IDs in order
func (p *OnboardingProgress) CompletedSteps() []StepID {
	return append([]StepID(nil), Steps[:p.completed]...)
}

// Complete reports whether all steps are completed
func (p *OnboardingProgress) Complete() bool {
	return p.completed >= len(Steps)
}

// MarkCompleted completes id, which must be the active step. Completing an
// already completed step is a no-op.
func (p *OnboardingProgress) MarkCompleted(id StepID) error {
	i := StepIndex(id)
	if i < 0 {
		return ErrUnknownStep
	}
	if i < p.completed {
		return nil
	}
	if i != p.completed {
		return ErrStepLocked
	}
	p.completed++
	return nil
}

// Draft returns a copy of id's draft fields
func (p *OnboardingProgress) Draft(id StepID) Fields {
	return p.draft[id].Clone()
}

// DraftAll returns a copy of the whole draft
func (p *OnboardingProgress) DraftAll() map[StepID]Fields {
	out := make(map[StepID]Fields, len(p.draft))
	for id, f := range p.draft {
		out[id] = f.Clone()
	}
	return out
}

// MergeDraft merges partial into id's draft without touching completion
func (p *OnboardingProgress) MergeDraft(id StepID, partial Fields) error {
	if StepIndex(id) < 0 {
		return ErrUnknownStep
	}
	cur, ok := p.draft[id]
	if !ok {
		cur = make(Fields, len(partial))
	}
	for k, v := range partial {
		cur[k] = v
	}
	p.draft[id] = cur
	return nil
}

// ClearDraft empties id's draft without touching completion
func (p *OnboardingProgress) ClearDraft(id StepID) error {
	if StepIndex(id) < 0 {
		return ErrUnknownStep
	}
	p.draft[id] = make(Fields)
	return nil
}
