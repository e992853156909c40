// Package types holds the DTOs shared between the monitoring engine's
// internal packages and its external callers (the registry API and the
// push bus). Secret fields never leave internal/monitor/model.
package types

import "time"

// Group is the closed set of monitored-entry categories.
type Group string

const (
	GroupWebsite  Group = "website"
	GroupAPI      Group = "api"
	GroupService  Group = "service"
	GroupDatabase Group = "database"
	GroupBackend  Group = "backend"
	GroupFrontend Group = "frontend"
	GroupIframe   Group = "iframe"
	GroupVideo    Group = "video"
	GroupGame     Group = "game"
	GroupWebGL    Group = "webgl"
)

// ValidGroups lists the closed set for validation.
var ValidGroups = map[Group]bool{
	GroupWebsite: true, GroupAPI: true, GroupService: true, GroupDatabase: true,
	GroupBackend: true, GroupFrontend: true, GroupIframe: true, GroupVideo: true,
	GroupGame: true, GroupWebGL: true,
}

// Status is the closed classification taxonomy (spec.md §4.2).
type Status string

const (
	StatusUp           Status = "UP"
	StatusFresh        Status = "FRESH"
	StatusWarning      Status = "WARNING"
	StatusDown         Status = "DOWN"
	StatusTimeout      Status = "TIMEOUT"
	StatusEmpty        Status = "EMPTY"
	StatusPartial      Status = "PARTIAL"
	StatusNotPlayable  Status = "NOT_PLAYABLE"
	StatusIframeFailed Status = "IFRAME_FAILED"
	StatusJSError      Status = "JS_ERROR"
	StatusNetworkError Status = "NETWORK_ERROR"
)

// AuthType is the closed set of authentication strategies for a monitored entry.
type AuthType string

const (
	AuthNone        AuthType = "NONE"
	AuthBasic       AuthType = "BASIC"
	AuthBearer      AuthType = "BEARER"
	AuthAPIKey      AuthType = "API_KEY"
	AuthBrowserLogin AuthType = "BROWSER_LOGIN"
)

// LoginType is the closed set of browser-login flows.
type LoginType string

const (
	LoginTypePage  LoginType = "page"
	LoginTypeModal LoginType = "modal"
)

// AuthConfig is the tagged-variant auth descriptor for a MonitoredURL.
// Secret fields (BearerToken, APIKeyValue, Password) are tagged json:"-",
// so the JSON encoding of this read-facing DTO never includes them
// (see internal/monitor/model for the write-side representation that
// does carry them).
type AuthConfig struct {
	Type AuthType `json:"type"`

	// BASIC / BROWSER_LOGIN
	Username string `json:"username,omitempty"`

	// BEARER
	BearerToken string `json:"-"`

	// API_KEY
	APIKeyHeader string `json:"apiKeyHeader,omitempty"`
	APIKeyValue  string `json:"-"`

	// BROWSER_LOGIN
	LoginURL              string    `json:"loginUrl,omitempty"`
	LoginType             LoginType `json:"loginType,omitempty"`
	UsernameSelector      string    `json:"usernameSelector,omitempty"`
	PasswordSelector      string    `json:"passwordSelector,omitempty"`
	SubmitSelector        string    `json:"submitSelector,omitempty"`
	ModalTriggerSelector  string    `json:"modalTriggerSelector,omitempty"`
	LoginSuccessSelector  string    `json:"loginSuccessSelector,omitempty"`
	Password              string    `json:"-"`
}

// MonitoredURL is the read-facing representation of a registry entry.
// History is capped at 20 samples, oldest first.
type MonitoredURL struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	Group         Group       `json:"group,omitempty"`
	Enabled       bool        `json:"enabled"`
	CheckInterval int64       `json:"checkInterval"`
	Dependencies  []string    `json:"dependencies,omitempty"`
	HasAuth       bool        `json:"requiresAuth"`
	AuthType      AuthType    `json:"authType,omitempty"`

	Status        Status    `json:"status"`
	Latency       int64     `json:"latency"`
	History       []int64   `json:"history"`
	LastChecked   time.Time `json:"lastChecked"`
	HTTPStatus    int       `json:"httpStatus,omitempty"`
	StatusMessage string    `json:"statusMessage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// ErrorDetails is the structured, user-visible explanation of a non-UP
// outcome (spec.md §4.2 / §7: never an opaque stack trace).
type ErrorDetails struct {
	Summary        string `json:"summary"`
	Location       string `json:"location,omitempty"`
	Reason         string `json:"reason"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ConsoleError is a single captured browser console error (spec.md §4.4 step 1).
type ConsoleError struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NetworkError is a single captured failed request (spec.md §4.4 step 1).
type NetworkError struct {
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	ResourceType string `json:"resourceType,omitempty"`
	FailureText  string `json:"failureText,omitempty"`
}

// IframeCheck is one enumerated <iframe> inspection result (spec.md §4.4 step 5).
type IframeCheck struct {
	Src       string `json:"src"`
	HasSrc    bool   `json:"hasSrc"`
	Loaded    bool   `json:"loaded"`
	Connected bool   `json:"connected"`
}

// VideoCheck is one enumerated <video> inspection result (spec.md §4.4 step 5).
type VideoCheck struct {
	ReadyState   int    `json:"readyState"`
	NetworkState int     `json:"networkState"`
	HasSource    bool   `json:"hasSource"`
	ErrorCode    int    `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Playable     bool   `json:"playable"`
}

// TransportError is the closed set of C3/C4 transport-level failures.
type TransportError string

const (
	TransportErrorNone       TransportError = ""
	TransportErrorTimeout    TransportError = "timeout"
	TransportErrorDNS        TransportError = "dns"
	TransportErrorConnection TransportError = "connection"
	TransportErrorTLS        TransportError = "tls"
	TransportErrorOther      TransportError = "other"
)

// ErrorKind enumerates probe-level error classifications surfaced via
// ProbeResult rather than as API errors (spec.md §7).
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindAuthFailed ErrorKind = "AUTH_FAILED"
)

// ProbeResult is the ephemeral outcome of a single probe (spec.md §3).
type ProbeResult struct {
	URLID         string    `json:"urlId"`
	Status        Status    `json:"status"`
	HTTPStatus    int       `json:"httpStatus,omitempty"`
	LatencyMs     int64     `json:"latencyMs"`
	ContentLength int64     `json:"contentLength,omitempty"`
	ErrorKind     ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`

	ErrorDetails *ErrorDetails `json:"errorDetails,omitempty"`

	ConsoleErrors  []ConsoleError `json:"consoleErrors,omitempty"`
	NetworkErrors  []NetworkError `json:"networkErrors,omitempty"`
	IframeChecks   []IframeCheck  `json:"iframeChecks,omitempty"`
	VideoChecks    []VideoCheck   `json:"videoChecks,omitempty"`
	ScreenshotRef  string         `json:"screenshotRef,omitempty"`
	AuthAttempted  bool           `json:"authAttempted,omitempty"`
	AuthSucceeded  bool           `json:"authSucceeded,omitempty"`

	// Persisted is false when the dispatcher exhausted its version-conflict
	// retries and dropped the write (spec.md §4.5 "Emission"); subscribers
	// still receive the result but it is tagged non-persisted.
	Persisted bool `json:"persisted"`
}
