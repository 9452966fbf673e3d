package chassis

import (
	"github.com/samber/lo"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
)

// verifyLocked collects every violation in cfg, including references to
// nodes that have no bound driver. Requires the chassis lock, shared or
// exclusive.
func (m *Manager) verifyLocked(cfg *config.ChassisConfig) []config.Violation {
	if cfg == nil {
		return []config.Violation{{Message: "chassis config is missing"}}
	}
	vs := cfg.Violations()

	referenced := append(cfg.NodeIDs(), lo.Map(cfg.SingletonPorts, func(p config.SingletonPort, _ int) uint64 {
		return p.Node
	})...)
	for _, nodeID := range lo.Uniq(referenced) {
		if nodeID == 0 {
			continue
		}
		if _, ok := m.bindings.driver(nodeID); !ok {
			vs = append(vs, config.Violation{
				NodeID:  nodeID,
				Message: "no device driver is bound to this node",
			})
		}
	}
	config.SortViolations(vs)
	return vs
}
