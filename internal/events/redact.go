package events

import "github.com/wg-federation/wg-federation/internal/model"

// Redacted returns payload with private keys and pre-shared keys masked, for
// anything that leaves the process (journal, NATS, logs).
func Redacted(payload any) any {
	switch p := payload.(type) {
	case model.HQState:
		return p.Redacted()
	case model.WireguardConfiguration:
		return p.Redacted()
	}
	return payload
}
