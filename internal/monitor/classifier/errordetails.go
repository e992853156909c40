package classifier

import (
	"fmt"

	"github.com/watchvane/sentinel/pkg/types"
)

// httpExplanations is the HTTP-code-keyed explanation table spec.md §4.2
// requires implementations to preserve for downstream UI consumers.
var httpExplanations = map[int]types.ErrorDetails{
	400: {Summary: "Bad Request", Reason: "The server could not understand the request due to malformed syntax.", Recommendation: "Check the request parameters and headers."},
	401: {Summary: "Unauthorized", Reason: "Authentication is required and has failed or was not provided.", Recommendation: "Verify the configured credentials are valid and not expired."},
	403: {Summary: "Forbidden", Reason: "The server understood the request but refuses to authorize it.", Recommendation: "Confirm the account has access to this resource."},
	404: {Summary: "Not Found", Reason: "The requested resource does not exist at this URL.", Recommendation: "Verify the URL is still correct."},
	405: {Summary: "Method Not Allowed", Reason: "The endpoint rejected the HTTP method used to probe it.", Recommendation: "Confirm whether the endpoint expects GET instead of HEAD."},
	408: {Summary: "Request Timeout", Reason: "The server timed out waiting for the request.", Recommendation: "Check server load and network latency."},
	410: {Summary: "Gone", Reason: "The resource is no longer available and no forwarding address is known.", Recommendation: "Remove or update this monitored entry."},
	429: {Summary: "Too Many Requests", Reason: "The server is rate-limiting this client.", Recommendation: "Increase the check interval for this entry."},
	500: {Summary: "Internal Server Error", Reason: "The server encountered an unexpected condition.", Recommendation: "Check server-side logs for the originating error."},
	502: {Summary: "Bad Gateway", Reason: "An upstream server returned an invalid response.", Recommendation: "Check the health of services behind this endpoint."},
	503: {Summary: "Service Unavailable", Reason: "The server is temporarily unable to handle the request.", Recommendation: "Check whether the service is overloaded or under maintenance."},
	504: {Summary: "Gateway Timeout", Reason: "An upstream server failed to respond in time.", Recommendation: "Check the latency of services behind this endpoint."},
	508: {Summary: "Loop Detected", Reason: "The server detected an infinite loop while processing the request.", Recommendation: "Check redirect or proxy configuration for cycles."},
	521: {Summary: "Web Server Is Down", Reason: "The origin server refused the connection.", Recommendation: "Confirm the origin server process is running and reachable."},
}

// BuildErrorDetails produces the structured, user-visible explanation
// spec.md §4.2/§7 requires instead of an opaque stack trace.
func BuildErrorDetails(status types.Status, o RawOutcome, location string) *types.ErrorDetails {
	if d, ok := httpExplanations[o.HTTPStatus]; ok {
		d.Location = location
		return &d
	}

	switch status {
	case types.StatusTimeout:
		return &types.ErrorDetails{
			Summary: "Request Timed Out", Location: location,
			Reason:         "No response was received within the configured timeout.",
			Recommendation: "Check whether the endpoint is overloaded or the timeout is too aggressive.",
		}
	case types.StatusNetworkError:
		return &types.ErrorDetails{
			Summary: "Network Error", Location: location,
			Reason:         networkErrorReason(o.TransportError),
			Recommendation: "Check DNS resolution, firewall rules, and TLS certificate validity.",
		}
	case types.StatusEmpty:
		return &types.ErrorDetails{
			Summary: "Empty Response", Location: location,
			Reason:         "The page rendered with no visible content.",
			Recommendation: "Confirm the page is not blocked or failing to hydrate client-side.",
		}
	case types.StatusIframeFailed:
		return &types.ErrorDetails{
			Summary: "Embedded Frame Failed", Location: location,
			Reason:         "One or more iframes on the page failed to load.",
			Recommendation: "Check the availability of the embedded content's origin.",
		}
	case types.StatusPartial:
		return &types.ErrorDetails{
			Summary: "Partial Failure", Location: location,
			Reason:         "Some, but not all, embedded resources failed to load.",
			Recommendation: "Inspect network errors for the specific failing resources.",
		}
	case types.StatusNotPlayable:
		return &types.ErrorDetails{
			Summary: "Video Not Playable", Location: location,
			Reason:         "A video element on the page could not begin playback.",
			Recommendation: "Verify the video source and that playback errors aren't logged server-side.",
		}
	case types.StatusJSError:
		return &types.ErrorDetails{
			Summary: "JavaScript Error", Location: location,
			Reason:         "The page logged one or more console errors.",
			Recommendation: "Inspect the console error list for the offending script.",
		}
	case types.StatusWarning:
		return &types.ErrorDetails{
			Summary: "Slow Response", Location: location,
			Reason:         fmt.Sprintf("Latency of %dms exceeded the warning threshold.", o.LatencyMs),
			Recommendation: "Investigate server-side or network latency.",
		}
	default:
		return nil
	}
}

func networkErrorReason(t types.TransportError) string {
	switch t {
	case types.TransportErrorDNS:
		return "DNS resolution failed for the configured host."
	case types.TransportErrorConnection:
		return "The connection to the host was refused or reset."
	case types.TransportErrorTLS:
		return "TLS handshake or certificate validation failed."
	default:
		return "An unspecified network-level failure occurred."
	}
}
