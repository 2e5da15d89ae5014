package gateway

import "strings"

// Status is the internal connection status enumeration. Vendor-native status
// strings never leak past this package boundary.
type Status string

// Internal connection statuses.
const (
	// StatusDisconnected means the instance has no active WhatsApp pairing.
	StatusDisconnected Status = "disconnected"
	// StatusConnecting means the instance is waiting for QR/pairing confirmation.
	StatusConnecting Status = "connecting"
	// StatusConnected means the instance has an active WhatsApp pairing.
	StatusConnected Status = "connected"
)

// statusVocabulary maps every known vendor status string onto the internal
// enumeration. Evolution reports close/connecting/open; Uazapi reports
// disconnected/connecting/connected.
var statusVocabulary = map[string]Status{
	"open":         StatusConnected,
	"connected":    StatusConnected,
	"connecting":   StatusConnecting,
	"close":        StatusDisconnected,
	"closed":       StatusDisconnected,
	"disconnected": StatusDisconnected,
}

// MapStatus maps a vendor-reported status string onto the internal
// enumeration. Vendor vocabularies are untrusted input: anything not
// recognized maps to disconnected, never to connected.
func MapStatus(raw string) Status {
	if status, ok := statusVocabulary[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusDisconnected
}
