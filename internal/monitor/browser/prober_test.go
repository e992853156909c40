package browser

import (
	"testing"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"

	"github.com/watchvane/sentinel/pkg/types"
)

func TestConsoleSourceInfo(t *testing.T) {
	tests := []struct {
		name         string
		event        *cdpruntime.EventConsoleAPICalled
		expectedURL  string
		expectedLine int
	}{
		{
			name:         "nil stack trace",
			event:        &cdpruntime.EventConsoleAPICalled{},
			expectedURL:  "",
			expectedLine: 0,
		},
		{
			name: "valid stack trace",
			event: &cdpruntime.EventConsoleAPICalled{
				StackTrace: &cdpruntime.StackTrace{
					CallFrames: []*cdpruntime.CallFrame{
						{URL: "https://example.com/app.js", LineNumber: 9, ColumnNumber: 4},
					},
				},
			},
			expectedURL:  "https://example.com/app.js",
			expectedLine: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, _, source := consoleSourceInfo(tt.event)
			assert.Equal(t, tt.expectedURL, source)
			assert.Equal(t, tt.expectedLine, line)
		})
	}
}

func TestHasCriticalResourceFailure(t *testing.T) {
	assert.True(t, hasCriticalResourceFailure([]types.NetworkError{{ResourceType: "Script"}}))
	assert.True(t, hasCriticalResourceFailure([]types.NetworkError{{ResourceType: "Stylesheet"}}))
	assert.False(t, hasCriticalResourceFailure([]types.NetworkError{{ResourceType: "Image"}}))
	assert.False(t, hasCriticalResourceFailure(nil))
}

func TestClassifyNavigationError(t *testing.T) {
	assert.Equal(t, types.TransportErrorNone, classifyNavigationError(nil))
	assert.Equal(t, types.TransportErrorDNS, classifyNavigationError(errDNS))
	assert.Equal(t, types.TransportErrorConnection, classifyNavigationError(errConn))
	assert.Equal(t, types.TransportErrorTLS, classifyNavigationError(errTLS))
}

var (
	errDNS  = fakeErr("net::ERR_NAME_NOT_RESOLVED")
	errConn = fakeErr("net::ERR_CONNECTION_REFUSED")
	errTLS  = fakeErr("net::ERR_CERT_AUTHORITY_INVALID: ssl handshake failed")
)

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestIframeCounts(t *testing.T) {
	checks := []types.IframeCheck{
		{Src: "a", HasSrc: true, Loaded: true},
		{Src: "b", HasSrc: true, Loaded: false},
	}
	total, failed := IframeCounts(checks)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, failed)
}

func TestAnyVideoUnplayable(t *testing.T) {
	assert.False(t, AnyVideoUnplayable([]types.VideoCheck{{Playable: true}}))
	assert.True(t, AnyVideoUnplayable([]types.VideoCheck{{Playable: true}, {Playable: false}}))
}
