package probe

import "fmt"

// Kind tells the two outcome variants apart.
type Kind int

const (
	// Unresolved means no HTTP status was obtained.
	Unresolved Kind = iota
	// Resolved means the server answered with a status line.
	Resolved
)

func (k Kind) String() string {
	if k == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// Reasons used for outcomes that never reached the network.
const (
	ReasonEmptyURL = "empty-url"
	ReasonFault    = "fault"
)

// Outcome is the result of a single probe. StatusCode is set only for
// Resolved outcomes, Reason only for Unresolved ones.
type Outcome struct {
	Kind       Kind   `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ResolvedWith returns a Resolved outcome carrying code.
func ResolvedWith(code int) Outcome {
	return Outcome{Kind: Resolved, StatusCode: code}
}

// UnresolvedWith returns an Unresolved outcome carrying reason.
func UnresolvedWith(reason string) Outcome {
	return Outcome{Kind: Unresolved, Reason: reason}
}

func (o Outcome) IsResolved() bool { return o.Kind == Resolved }

// Exists reports a Resolved status in [200, 400).
func (o Outcome) Exists() bool {
	return o.Kind == Resolved && o.StatusCode >= 200 && o.StatusCode < 400
}

// String renders the status code, or "ERROR: <reason>" when unresolved.
func (o Outcome) String() string {
	if o.Kind == Resolved {
		return fmt.Sprintf("%d", o.StatusCode)
	}
	return "ERROR: " + o.Reason
}
