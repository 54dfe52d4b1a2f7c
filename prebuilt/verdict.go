package prebuilt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/smallnest/crewgraph/graph"
)

// Auxiliary state keys shared by the prebuilt graphs.
const (
	// AuxVerdict holds the Verdict of the latest review or approval stage.
	AuxVerdict = "verdict"
	// AuxDraftError is true when the latest draft could not be produced.
	AuxDraftError = "draft_error"
	// AuxHumanFeedback holds rejection feedback until the agent consumes it.
	AuxHumanFeedback = "human_feedback"
)

// ErrAmbiguousVerdict is returned when a run ends on an ambiguous verdict
// under the FailRun policy.
var ErrAmbiguousVerdict = errors.New("ambiguous verdict")

// VerdictKind is the outcome of a review or approval stage.
type VerdictKind int

const (
	Approved VerdictKind = iota
	Rejected
	Ambiguous
)

func (k VerdictKind) String() string {
	switch k {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	case Ambiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("verdict(%d)", int(k))
	}
}

// Verdict is the tagged result of a review or approval stage.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

// Approve returns an Approved verdict.
func Approve() Verdict { return Verdict{Kind: Approved} }

// Reject returns a Rejected verdict with reason.
func Reject(reason string) Verdict { return Verdict{Kind: Rejected, Reason: reason} }

// Unclear returns an Ambiguous verdict with reason.
func Unclear(reason string) Verdict { return Verdict{Kind: Ambiguous, Reason: reason} }

// String renders the verdict the way it is recorded in the transcript:
// "approved", "rejected: <reason>" or "ambiguous: <reason>".
func (v Verdict) String() string {
	if v.Kind == Approved || v.Reason == "" {
		return v.Kind.String()
	}
	return v.Kind.String() + ": " + v.Reason
}

// AmbiguousPolicy decides how an ambiguous verdict is routed.
type AmbiguousPolicy int

const (
	// TreatAsRejected sends the work back for another round.
	TreatAsRejected AmbiguousPolicy = iota
	// TreatAsApproved ends the run as if approved.
	TreatAsApproved
	// FailRun stops the run with ErrAmbiguousVerdict.
	FailRun
)

func (p AmbiguousPolicy) String() string {
	switch p {
	case TreatAsApproved:
		return "approve"
	case FailRun:
		return "fail"
	default:
		return "reject"
	}
}

// ParseAmbiguousPolicy accepts "reject" (or ""), "approve" and "fail".
func ParseAmbiguousPolicy(s string) (AmbiguousPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject", "rejected":
		return TreatAsRejected, nil
	case "approve", "approved":
		return TreatAsApproved, nil
	case "fail", "error":
		return FailRun, nil
	default:
		return TreatAsRejected, fmt.Errorf("unknown ambiguous verdict policy %q", s)
	}
}

// Resolve applies the policy. Only FailRun leaves a verdict Ambiguous.
func (p AmbiguousPolicy) Resolve(v Verdict) Verdict {
	if v.Kind != Ambiguous {
		return v
	}
	switch p {
	case TreatAsApproved:
		return Approve()
	case FailRun:
		return v
	default:
		return Reject(v.Reason)
	}
}

// VerdictOf returns the verdict stored in the state, if any.
func VerdictOf(s graph.MessagesState) (Verdict, bool) {
	v, ok := s.Aux[AuxVerdict].(Verdict)
	return v, ok
}

var (
	approvedMarker = regexp.MustCompile(`(?i)\bapproved?\b`)
	rejectedMarker = regexp.MustCompile(`(?i)\breject(ed)?\b[\s:,.-]*`)
)

// ParseReview reads a model reviewer's answer. Exactly one of the markers
// APPROVED and REJECTED must occur; the text following REJECTED is the
// reason. Anything else is Ambiguous.
func ParseReview(text string) Verdict {
	approved := approvedMarker.MatchString(text)
	loc := rejectedMarker.FindStringIndex(text)

	switch {
	case approved && loc == nil:
		return Approve()
	case loc != nil && !approved:
		reason := strings.TrimSpace(text[loc[1]:])
		if reason == "" {
			reason = "no reason given"
		}
		return Reject(reason)
	case approved:
		return Unclear("review contains both approval and rejection")
	default:
		return Unclear("review contains no verdict")
	}
}

// HumanVerdict interprets a reviewer's input: exactly the approve token
// approves, empty input is ambiguous, and anything else (including "OK"
// when the token is "ok") is a rejection carrying the input as feedback.
// Surrounding whitespace is ignored.
func HumanVerdict(input, approveToken string) Verdict {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return Unclear("empty review input")
	case input == approveToken:
		return Approve()
	default:
		return Reject(input)
	}
}
