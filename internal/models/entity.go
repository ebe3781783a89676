package models

// EntityKind plant is a leaf; cycle and tent are groups
type EntityKind string

const (
	KindPlant EntityKind = "plant"
	KindCycle EntityKind = "cycle"
	KindTent  EntityKind = "tent"
)

// IsGroup cycles and tents aggregate their members
func (k EntityKind) IsGroup() bool {
	return k == KindCycle || k == KindTent
}

// EntityConfig configuration of one entity as stored in Postgres
type EntityConfig struct {
	EntityID string     `json:"entity_id"`
	Name     string     `json:"name"`
	Kind     EntityKind `json:"kind"`
	// Sources metric -> external source id
	Sources map[Metric]string `json:"sources,omitempty"`
	// Limits explicit per-entity thresholds; highest seeding priority
	Limits map[Metric]Limits `json:"limits,omitempty"`
	// Triggers per-metric trigger flags; missing means enabled
	Triggers map[Metric]bool `json:"triggers,omitempty"`
	// Aggregations group strategies; missing falls back to the catalogue default
	Aggregations map[Metric]Strategy `json:"aggregations,omitempty"`
	// Decimals rounding overrides, validated by the rounding policy
	Decimals map[Metric]any `json:"decimals,omitempty"`
	Members  []string       `json:"members,omitempty"`
}

// DefaultConfig the shared default-configuration node
type DefaultConfig struct {
	Limits   map[Metric]Limits `json:"limits,omitempty"`
	Decimals map[Metric]any    `json:"decimals,omitempty"`
}
