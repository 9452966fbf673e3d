package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Violation is a single problem found in a chassis config. NodeID and PortID
// are zero when the violation is not tied to a node or port.
type Violation struct {
	NodeID  uint64 `json:"node_id,omitempty"`
	PortID  uint32 `json:"port_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	var b strings.Builder
	if v.NodeID != 0 {
		fmt.Fprintf(&b, "node %d: ", v.NodeID)
	}
	if v.PortID != 0 {
		fmt.Fprintf(&b, "port %d: ", v.PortID)
	}
	if v.Field != "" {
		fmt.Fprintf(&b, "%s: ", v.Field)
	}
	b.WriteString(v.Message)
	return b.String()
}

// ValidationError carries every violation found in a config. It satisfies
// errors.Is(err, errors.NotValid).
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := lo.Map(e.Violations, func(v Violation, _ int) string { return v.String() })
	return fmt.Sprintf("invalid chassis config (%d violations): %s", len(msgs), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return errors.NotValid }

// AsError returns nil when vs is empty and a *ValidationError otherwise.
func AsError(vs []Violation) error {
	if len(vs) == 0 {
		return nil
	}
	return &ValidationError{Violations: vs}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fieldViolations runs the struct tag checks on s and converts every failed
// field into a violation.
func fieldViolations(s any, nodeID uint64, portID uint32) []Violation {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{NodeID: nodeID, PortID: portID, Message: err.Error()}}
	}
	out := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{
			NodeID:  nodeID,
			PortID:  portID,
			Field:   trimNamespace(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

func trimNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "oneof":
		return fmt.Sprintf("value %v is not one of [%s]", fe.Value(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("value %v is below %s", fe.Value(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("value %v is above %s", fe.Value(), fe.Param())
	case "mac":
		return fmt.Sprintf("%q is not a MAC address", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// Violations runs every format-level and self-consistency check on the config
// and returns all problems found. It never stops at the first one.
func (c *ChassisConfig) Violations() []Violation {
	var out []Violation
	if c == nil {
		return []Violation{{Message: "chassis config is missing"}}
	}
	out = append(out, fieldViolations(c.Chassis, 0, 0)...)

	if len(c.Nodes) == 0 {
		out = append(out, Violation{Field: "nodes", Message: "no nodes defined"})
	}
	for _, n := range c.Nodes {
		out = append(out, fieldViolations(n, n.ID, 0)...)
	}
	for _, id := range lo.FindDuplicates(c.NodeIDs()) {
		out = append(out, Violation{NodeID: id, Field: "nodes.id", Message: "duplicate node id"})
	}

	known := lo.SliceToMap(c.Nodes, func(n Node) (uint64, struct{}) { return n.ID, struct{}{} })
	seen := make(map[uint64]map[uint32]struct{})
	type location struct{ slot, port, channel int32 }
	locations := make(map[location]SingletonPort)
	names := make(map[string]SingletonPort)

	for _, p := range c.SingletonPorts {
		out = append(out, fieldViolations(p, p.Node, p.ID)...)

		if _, ok := known[p.Node]; p.Node != 0 && !ok {
			out = append(out, Violation{NodeID: p.Node, PortID: p.ID, Field: "node", Message: "node is not listed in nodes"})
		}

		ids, ok := seen[p.Node]
		if !ok {
			ids = make(map[uint32]struct{})
			seen[p.Node] = ids
		}
		if _, dup := ids[p.ID]; dup && p.ID != 0 {
			out = append(out, Violation{NodeID: p.Node, PortID: p.ID, Field: "id", Message: "duplicate port id within node"})
		}
		ids[p.ID] = struct{}{}

		loc := location{p.Slot, p.Port, p.Channel}
		if other, dup := locations[loc]; dup {
			out = append(out, Violation{
				NodeID:  p.Node,
				PortID:  p.ID,
				Message: fmt.Sprintf("slot %d port %d channel %d already used by node %d port %d", p.Slot, p.Port, p.Channel, other.Node, other.ID),
			})
		} else {
			locations[loc] = p
		}

		if p.Name != "" {
			if other, dup := names[p.Name]; dup {
				out = append(out, Violation{
					NodeID:  p.Node,
					PortID:  p.ID,
					Field:   "name",
					Message: fmt.Sprintf("name %q already used by node %d port %d", p.Name, other.Node, other.ID),
				})
			} else {
				names[p.Name] = p
			}
		}
	}
	return out
}

// Validate is Violations folded into an error.
func (c *ChassisConfig) Validate() error {
	return AsError(c.Violations())
}

// SortViolations orders violations by node, port and field so that callers
// get a stable listing.
func SortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].NodeID != vs[j].NodeID {
			return vs[i].NodeID < vs[j].NodeID
		}
		if vs[i].PortID != vs[j].PortID {
			return vs[i].PortID < vs[j].PortID
		}
		return vs[i].Field < vs[j].Field
	})
}
