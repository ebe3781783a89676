package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	SentinelUnavailable = "unavailable"
	SentinelUnknown     = "unknown"
)

// SourceState one reading of an external value provider, as the host state store reports it
type SourceState struct {
	SourceID    string    `json:"entity_id"`
	State       StateText `json:"state"`
	Unit        string    `json:"unit_of_measurement,omitempty"`
	DeviceClass string    `json:"device_class,omitempty"`
	UpdatedAt   time.Time `json:"last_updated,omitempty"`
}

// UnmarshalJSON accepts unit and device class either at the top level or
// nested under attributes, as the host REST API reports them.
func (s *SourceState) UnmarshalJSON(data []byte) error {
	type flat SourceState
	var wire struct {
		flat
		Attributes struct {
			Unit        string `json:"unit_of_measurement"`
			DeviceClass string `json:"device_class"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = SourceState(wire.flat)
	if s.Unit == "" {
		s.Unit = wire.Attributes.Unit
	}
	if s.DeviceClass == "" {
		s.DeviceClass = wire.Attributes.DeviceClass
	}
	return nil
}

// SentinelReason maps sentinel states to their reason; ReasonOk for real values
func (s SourceState) SentinelReason() Reason {
	switch strings.ToLower(strings.TrimSpace(string(s.State))) {
	case SentinelUnavailable:
		return ReasonUnavailable
	case SentinelUnknown, "none", "":
		return ReasonUnknownState
	default:
		return ReasonOk
	}
}

// Number parses the state as a finite float64; nan and inf are not readings
func (s SourceState) Number() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s.State)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// StateText state that decodes from either a JSON string or a JSON number
type StateText string

func (t *StateText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = StateText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// booleans and objects are kept verbatim and fail numeric parsing later
		*t = StateText(data)
		return nil
	}
	*t = StateText(n.String())
	return nil
}
