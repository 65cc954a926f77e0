package domain

import "time"

// Role is the account type a user signs in as
type Role string

const (
	RoleUnset    Role = ""
	RoleCustomer Role = "customer"
	RoleArtist   Role = "artist"
)

// Valid reports whether r is one of the selectable roles
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleArtist
}

// ParseRole converts a wire value into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return RoleUnset, NewValidationError("role")
	}
	return r, nil
}

// SessionStatus is the top-level authentication state
type SessionStatus string

const (
	StatusChecking        SessionStatus = "checking"
	StatusUnauthenticated SessionStatus = "unauthenticated"
	StatusAuthenticated   SessionStatus = "authenticated"
)

// PendingAction tags the single in-flight operation of a client
type PendingAction string

const (
	ActionNone           PendingAction = ""
	ActionCheckingUser   PendingAction = "checking-user"
	ActionSendingOTP     PendingAction = "sending-otp"
	ActionVerifyingOTP   PendingAction = "verifying-otp"
	ActionProviderLogin  PendingAction = "provider-login"
	ActionSubmittingStep PendingAction = "submitting-step"
	ActionUploading      PendingAction = "uploading"
)

// Channel is a verification medium
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	return c == ChannelPhone || c == ChannelEmail
}

// Phase is the lifecycle position of a VerificationAttempt
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSending   Phase = "sending"
	PhaseSent      Phase = "sent"
	PhaseVerifying Phase = "verifying"
	PhaseVerified  Phase = "verified"
)

// AuthMode distinguishes the login and signup paths
type AuthMode string

const (
	ModeLogin    AuthMode = "login"
	ModeSignup   AuthMode = "signup"
	ModeProvider AuthMode = "provider"
)

// Valid reports whether m is a known mode
func (m AuthMode) Valid() bool {
	return m == ModeLogin || m == ModeSignup || m == ModeProvider
}

// Session is a read-only snapshot of a client's SessionManager
type Session struct {
	UserRef       string        `json:"user_ref,omitempty"`
	Role          Role          `json:"role,omitempty"`
	Status        SessionStatus `json:"status"`
	PendingAction PendingAction `json:"pending_action,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Transitioning bool          `json:"transitioning"`
	Account       Account       `json:"-"`
}

// Authenticated reports whether the snapshot carries a live session
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.UserRef != ""
}

// VerificationAttempt is a snapshot of one channel's OTP cycle
type VerificationAttempt struct {
	Channel           Channel   `json:"channel"`
	Target            string    `json:"target,omitempty"`
	Phase             Phase     `json:"phase"`
	ResendAvailableAt time.Time `json:"resend_available_at,omitempty"`
	CanResend         bool      `json:"can_resend"`
	Code              string    `json:"-"`
	LastError         string    `json:"last_error,omitempty"`
}

// AccountConflict is the result of an existence lookup; never cached
type AccountConflict struct {
	Exists       bool `json:"exists"`
	ExistingRole Role `json:"existing_role,omitempty"`
}

// ChallengeHandle identifies a dispatched challenge at the identity provider
type ChallengeHandle string

// ProviderToken is issued by the identity provider after a successful
// verification or interactive login
type ProviderToken struct {
	Raw        string    `json:"raw"`
	Subject    string    `json:"subject"`
	Channel    string    `json:"channel"`
	Identifier string    `json:"identifier"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// OTPRequest describes a dispatched one-time code
type OTPRequest struct {
	Handle    ChallengeHandle `json:"handle"`
	Channel   Channel         `json:"channel"`
	Target    string          `json:"target"`
	ExpiresAt time.Time       `json:"expires_at"`
	Attempts  int             `json:"attempts"`
}

// AuthResult represents the Profile Service authentication outcome
type AuthResult struct {
	Account Account
	Token   string
}

// NoticeKind classifies non-blocking messages for the user
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
)

// Notice is an informational, non-blocking message
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// Notice codes
const (
	NoticeRoleAddition  = "role_addition"
	NoticeSessionExpiry = "session_expiring"
	NoticeSessionEnded  = "session_expired"
)

// UploadCategory names where an uploaded asset belongs
type UploadCategory string

const (
	UploadProfilePicture UploadCategory = "profile-picture"
	UploadCertificate    UploadCategory = "certificate"
	UploadPortfolio      UploadCategory = "portfolio"
)

// UploadFile is a file handed to the upload collaborator
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// Persisted store keys
const (
	KeySessionAccount   = "session.account"
	KeySessionRole      = "session.role"
	KeySessionToken     = "session.token"
	KeyArtistSetupSteps = "artist.setupSteps"
	KeyArtistDraft      = "artist.onboardingDraft"
)

// SessionKeys lists every key cleared on logout
var SessionKeys = []string{KeySessionAccount, KeySessionRole, KeySessionToken}
