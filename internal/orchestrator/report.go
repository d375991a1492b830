package orchestrator

import "github.com/prudhvinik1/crmsync/internal/crm"

// State is a step of one unit of work.
type State string

const (
	StatePending      State = "PENDING"
	StateConnected    State = "CONNECTED"
	StateLoaded       State = "LOADED"
	StateCreated      State = "CREATED"
	StateUpdated      State = "UPDATED"
	StateDeleted      State = "DELETED"
	StateRestored     State = "RESTORED"
	StateSkipped      State = "SKIPPED"
	StateLinked       State = "LINKED"
	StateDisconnected State = "DISCONNECTED"
	StateFailed       State = "FAILED"
)

// Report is the outcome of one Execute call.
type Report struct {
	CorrelationID string       `json:"correlation_id"`
	LocalType     string       `json:"local_type"`
	LocalID       string       `json:"local_id"`
	Actions       string       `json:"actions"`
	Skipped       string       `json:"skipped,omitempty"`
	Units         []UnitResult `json:"units"`
}

// UnitResult is the outcome of one (environment, provider) unit.
type UnitResult struct {
	Environment  string              `json:"environment"`
	Provider     string              `json:"provider"`
	RemoteType   string              `json:"remote_type"`
	RemoteID     string              `json:"remote_id,omitempty"`
	Outcome      State               `json:"outcome"`
	State        State               `json:"state"`
	Linked       bool                `json:"linked"`
	Transitions  []State             `json:"transitions"`
	Associations []AssociationResult `json:"associations,omitempty"`
	Error        string              `json:"error,omitempty"`
	ErrorCode    crm.Code            `json:"error_code,omitempty"`

	Err error `json:"-"`
}

// AssociationResult is the outcome of one association rule.
type AssociationResult struct {
	Accessor   string `json:"accessor"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed returns the units that ended in FAILED.
func (r *Report) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.State == StateFailed {
			out = append(out, u)
		}
	}
	return out
}

// OK reports whether every unit completed.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

func (u *UnitResult) transition(s State) {
	u.State = s
	u.Transitions = append(u.Transitions, s)
}

func (u *UnitResult) fail(err error) {
	u.Err = err
	u.Error = err.Error()
	u.ErrorCode = crm.CodeOf(err)
	u.transition(StateFailed)
}
