package models

// ForwarderHealth is the /health payload of the streaming forwarder.
type ForwarderHealth struct {
	OK      bool   `json:"ok"`
	Symbol  string `json:"symbol"`
	HasTick bool   `json:"hasTick"`
}

// SnapshotHealth is the /health payload of the on-demand snapshot server.
type SnapshotHealth struct {
	OK            bool   `json:"ok"`
	Mode          string `json:"mode"`
	DefaultSymbol string `json:"defaultSymbol"`
}
