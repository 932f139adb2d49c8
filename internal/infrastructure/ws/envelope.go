package ws

import (
	"encoding/json"
	"fmt"

	"github.com/scribemarket/scribemarket/internal/events"
)

func marshalEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	env := events.Envelope{Event: events.Name(event), Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", event, err)
	}
	return out, nil
}
