package external

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	packetMarker    = "~m~"
	heartbeatPrefix = "~h~"
)

var packetSplit = regexp.MustCompile(`~m~\d+~m~`)

// EncodePacket wraps a payload in the vendor's length-prefixed envelope.
func EncodePacket(payload string) string {
	return packetMarker + strconv.Itoa(len(payload)) + packetMarker + payload
}

// DecodeFrame splits one WebSocket text frame into its packet payloads.
// A frame may carry several packets back to back.
func DecodeFrame(frame string) []string {
	if !strings.HasPrefix(frame, packetMarker) {
		if frame == "" {
			return nil
		}
		return []string{frame}
	}
	parts := packetSplit.Split(frame, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func IsHeartbeat(payload string) bool {
	return strings.HasPrefix(payload, heartbeatPrefix)
}
