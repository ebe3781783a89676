package models

import "time"

// MetricView one metric of an entity as consumed by dashboards
type MetricView struct {
	Current        *float64     `json:"current"`
	Min            *float64     `json:"min"`
	Max            *float64     `json:"max"`
	Icon           string       `json:"icon"`
	Unit           string       `json:"unit"`
	SourceID       *string      `json:"source_id"`
	Status         MetricStatus `json:"status"`
	Reason         Reason       `json:"reason"`
	TriggerEnabled bool         `json:"trigger_enabled"`
	Decimals       int          `json:"decimals"`
}

// EntityView read model of one entity
type EntityView struct {
	EntityID        string                  `json:"entity_id"`
	Name            string                  `json:"name"`
	Kind            EntityKind              `json:"kind"`
	DeviceStatus    DeviceStatus            `json:"device_status"`
	PerMetricStatus map[Metric]MetricStatus `json:"per_metric_status"`
	Metrics         map[Metric]MetricView   `json:"metrics"`
	Members         []string                `json:"members,omitempty"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// StatusEvent published when an entity's statuses change between cycles
type StatusEvent struct {
	EventID              string                  `json:"event_id"`
	EntityID             string                  `json:"entity_id"`
	DeviceStatus         DeviceStatus            `json:"device_status"`
	PreviousDeviceStatus DeviceStatus            `json:"previous_device_status"`
	MetricStatus         map[Metric]MetricStatus `json:"metric_status"`
	At                   int64                   `json:"at"`
}
