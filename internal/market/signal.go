package market

import (
	"encoding/json"
	"fmt"
)

// TriggerUpdate is the only action a RefreshSignal currently carries.
const TriggerUpdate = "update"

// RefreshSignal is the message exchanged on the bus subject.
type RefreshSignal struct {
	Trigger string `json:"trigger"`
}

// UpdateSignal returns the signal asking consumers to run a refresh cycle.
func UpdateSignal() RefreshSignal {
	return RefreshSignal{Trigger: TriggerUpdate}
}

func (s RefreshSignal) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses a bus payload.
func DecodeSignal(data []byte) (RefreshSignal, error) {
	var s RefreshSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return RefreshSignal{}, fmt.Errorf("decode refresh signal: %w", err)
	}
	return s, nil
}
