package lifecycle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// State is a worker's position in its connection lifecycle.
type State int

const (
	Connecting State = iota
	Pending
	Active
	Errored
	Rejected
	Closed
)

var stateNames = map[State]string{
	Connecting: "connecting",
	Pending:    "pending",
	Active:     "active",
	Errored:    "errored",
	Rejected:   "rejected",
	Closed:     "closed",
}

var stateFromName = map[string]State{
	"connecting": Connecting,
	"pending":    Pending,
	"active":     Active,
	"errored":    Errored,
	"rejected":   Rejected,
	"closed":     Closed,
}

// All lists every state in display order.
var All = []State{Connecting, Pending, Active, Errored, Rejected, Closed}

// next holds the only forward edges a worker may take within one session.
var next = map[State][]State{
	Connecting: {Pending, Rejected},
	Pending:    {Active, Errored},
	Active:     {Closed, Errored},
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Label is the upper-case form shown in the live table.
func (s State) Label() string {
	return strings.ToUpper(s.String())
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, ok := stateFromName[n]
	if !ok {
		return fmt.Errorf("unknown lifecycle state %q", n)
	}
	*s = v
	return nil
}

// MarshalText lets states key JSON objects by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(data []byte) error {
	v, ok := stateFromName[string(data)]
	if !ok {
		return fmt.Errorf("unknown lifecycle state %q", data)
	}
	*s = v
	return nil
}

func (s State) IsTerminal() bool {
	return s == Errored || s == Rejected || s == Closed
}

// CanTransition reports whether a worker in state from may move to state to
// without restarting its session.
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Identity is the registry key of a single simulated client. It is assigned
// at launch and never changes.
type Identity struct {
	Group  string `json:"group"`
	Target string `json:"target"`
	Index  int    `json:"index"`
}

func (id Identity) String() string {
	return id.Group + "/" + id.Target + "/" + strconv.Itoa(id.Index)
}

// Less orders identities by group, target, then numeric index.
func (id Identity) Less(other Identity) bool {
	if id.Group != other.Group {
		return id.Group < other.Group
	}
	if id.Target != other.Target {
		return id.Target < other.Target
	}
	return id.Index < other.Index
}
