package domain

import "fmt"

// SignalKind discriminates the WebRTC negotiation payloads the relay
// forwards. Payload contents are opaque to this service.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func ParseSignalKind(s string) (SignalKind, error) {
	switch SignalKind(s) {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return SignalKind(s), nil
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}
