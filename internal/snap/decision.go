package snap

import (
	"fmt"
	"time"
)

// Display status lines shown on the booth page
const (
	StatusIdle     = "Scan the QR code to get started"
	StatusSnapping = "You look great! Creating your fauxto"
	StatusWaiting  = "Waiting for a few more"
)

// StatusMissing is the display status before the first fauxto when fewer
// contributors than the ideal size have joined.
func StatusMissing(n int) string {
	return fmt.Sprintf("Invite more people to upload their photo, missing %d", n)
}

// MinMemberSize and MaxMemberSize bound a booth's ideal group size.
const (
	MinMemberSize = 1
	MaxMemberSize = 10
)

// ClampMemberSize forces an ideal member size into [1,10].
func ClampMemberSize(n int) int {
	if n < MinMemberSize {
		return MinMemberSize
	}
	if n > MaxMemberSize {
		return MaxMemberSize
	}
	return n
}

// DecisionInput is everything the snap decision looks at.
type DecisionInput struct {
	// Awaiting is distinct uploaders minus distinct identities already in a fauxto.
	Awaiting        int
	IdealMemberSize int
	// Reshoot permits firing even when no new uploaders are awaiting.
	// Only an explicit reshoot sets it; the debounced retry re-evaluates
	// plainly so it cannot fire an empty composite.
	Reshoot bool
	// Forced bypasses the quiet period entirely; only an explicit reshoot sets it.
	Forced       bool
	LastFauxtoAt *time.Time
	Now          time.Time
	QuietPeriod  time.Duration
	// RetryPending is true when a debounced retry is already scheduled.
	RetryPending bool
}

// Decision is the outcome of one snap evaluation. An empty Status means the
// displayed status is left as is.
type Decision struct {
	Fire          bool
	ScheduleRetry bool
	Status        string
}

// Evaluate runs the snap-decision state machine for one upload event,
// scheduled retry, or explicit reshoot.
func Evaluate(in DecisionInput) Decision {
	if in.Awaiting <= 0 && !in.Reshoot {
		return Decision{}
	}
	if in.Awaiting >= in.IdealMemberSize || in.Forced {
		return Decision{Fire: true, Status: StatusSnapping}
	}

	// Under threshold. Before the first fauxto the booth is upload-driven
	// only: report what is missing and wait for the next event.
	if in.LastFauxtoAt == nil {
		return Decision{Status: StatusMissing(in.IdealMemberSize - in.Awaiting)}
	}
	if in.Now.Sub(*in.LastFauxtoAt) < in.QuietPeriod {
		return Decision{Status: StatusWaiting, ScheduleRetry: !in.RetryPending}
	}
	return Decision{Fire: true, Status: StatusSnapping}
}
