package model

import (
	"time"

	"github.com/watchvane/sentinel/pkg/types"
)

// MaxHistory is the bounded history length enforced by the Store (spec.md §3).
const MaxHistory = 20

// AuthConfig is the write-side auth descriptor: unlike types.AuthConfig it
// carries secret values, since only the Store and the browser prober ever
// see them. Read APIs and push-bus events are built exclusively from
// types.MonitoredURL / types.ProbeResult, which omit these fields.
type AuthConfig struct {
	Type AuthType

	Username string

	BearerToken string

	APIKeyHeader string
	APIKeyValue  string

	LoginURL             string
	LoginType            LoginType
	UsernameSelector     string
	PasswordSelector     string
	SubmitSelector       string
	ModalTriggerSelector string
	LoginSuccessSelector string
	Password             string
}

type (
	AuthType  = types.AuthType
	LoginType = types.LoginType
)

const (
	AuthNone         = types.AuthNone
	AuthBasic        = types.AuthBasic
	AuthBearer       = types.AuthBearer
	AuthAPIKey       = types.AuthAPIKey
	AuthBrowserLogin = types.AuthBrowserLogin

	LoginTypePage  = types.LoginTypePage
	LoginTypeModal = types.LoginTypeModal
)

// Entry is the engine-internal registry record: the full MonitoredUrl
// entity of spec.md §3, including secrets and the optimistic-concurrency
// version counter.
type Entry struct {
	ID            string
	URL           string
	NormalizedURL string
	Name          string
	Description   string
	Group         types.Group
	Enabled       bool
	CheckInterval time.Duration
	Dependencies  []string
	Auth          *AuthConfig

	Status        types.Status
	Latency       int64
	History       []int64
	LastChecked   time.Time
	HTTPStatus    int
	StatusMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// ToPublic projects an Entry to the read-facing DTO, dropping every secret.
func (e *Entry) ToPublic() *types.MonitoredURL {
	pub := &types.MonitoredURL{
		ID:            e.ID,
		URL:           e.URL,
		Name:          e.Name,
		Description:   e.Description,
		Group:         e.Group,
		Enabled:       e.Enabled,
		CheckInterval: e.CheckInterval.Milliseconds(),
		Dependencies:  append([]string(nil), e.Dependencies...),
		Status:        e.Status,
		Latency:       e.Latency,
		History:       append([]int64(nil), e.History...),
		LastChecked:   e.LastChecked,
		HTTPStatus:    e.HTTPStatus,
		StatusMessage: e.StatusMessage,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		Version:       e.Version,
	}
	if e.Auth != nil {
		pub.HasAuth = true
		pub.AuthType = e.Auth.Type
	}
	return pub
}

// AppendHistory appends a latency sample, truncating to the oldest-to-newest
// last MaxHistory entries (spec.md §3, §4.1 appendHistory).
func AppendHistory(history []int64, latencyMs int64) []int64 {
	history = append(history, latencyMs)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	return history
}

// StatusPatch is the set of fields a probe completion writes atomically
// (spec.md §4.1 appendHistory / §4.5).
type StatusPatch struct {
	LatencyMs     int64
	Status        types.Status
	HTTPStatus    int
	StatusMessage string
	CheckedAt     time.Time
}

// Patch is a partial update for the Registry Service (spec.md §4.7).
// Pointer fields distinguish "not supplied" (nil, preserve) from
// "supplied" (non-nil, apply) for ordinary fields; secret fields follow
// the explicit tri-state described in spec.md §4.7 ("an omitted secret
// field means preserve existing; an explicit empty string clears it"),
// modeled with *string as well since Go has no native undefined/null
// distinction for strings.
type Patch struct {
	URL           *string
	Name          *string
	Description   *string
	Group         *types.Group
	Enabled       *bool
	CheckInterval *time.Duration
	Dependencies  *[]string
	Auth          *AuthPatch
}

// AuthPatch mirrors AuthConfig but every secret field is a *string so the
// caller can distinguish "omitted" from "explicitly cleared".
type AuthPatch struct {
	Type *AuthType

	Username *string

	BearerToken *string

	APIKeyHeader *string
	APIKeyValue  *string

	LoginURL             *string
	LoginType            *LoginType
	UsernameSelector     *string
	PasswordSelector     *string
	SubmitSelector       *string
	ModalTriggerSelector *string
	LoginSuccessSelector *string
	Password             *string
}

// ApplyAuthPatch merges an AuthPatch onto an existing AuthConfig (nil if
// there was none), honoring the preserve/clear secret semantics.
func ApplyAuthPatch(existing *AuthConfig, patch *AuthPatch) *AuthConfig {
	if patch == nil {
		return existing
	}
	out := &AuthConfig{}
	if existing != nil {
		*out = *existing
	}
	if patch.Type != nil {
		out.Type = *patch.Type
	}
	if patch.Username != nil {
		out.Username = *patch.Username
	}
	if patch.BearerToken != nil {
		out.BearerToken = *patch.BearerToken
	}
	if patch.APIKeyHeader != nil {
		out.APIKeyHeader = *patch.APIKeyHeader
	}
	if patch.APIKeyValue != nil {
		out.APIKeyValue = *patch.APIKeyValue
	}
	if patch.LoginURL != nil {
		out.LoginURL = *patch.LoginURL
	}
	if patch.LoginType != nil {
		out.LoginType = *patch.LoginType
	}
	if patch.UsernameSelector != nil {
		out.UsernameSelector = *patch.UsernameSelector
	}
	if patch.PasswordSelector != nil {
		out.PasswordSelector = *patch.PasswordSelector
	}
	if patch.SubmitSelector != nil {
		out.SubmitSelector = *patch.SubmitSelector
	}
	if patch.ModalTriggerSelector != nil {
		out.ModalTriggerSelector = *patch.ModalTriggerSelector
	}
	if patch.LoginSuccessSelector != nil {
		out.LoginSuccessSelector = *patch.LoginSuccessSelector
	}
	if patch.Password != nil {
		out.Password = *patch.Password
	}
	if out.Type == "" {
		return nil
	}
	return out
}
