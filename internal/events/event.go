// Package events provides the synchronous HQ event dispatcher.
//
// Every state transition performed by the state manager is announced here. Handlers
// run in registration order on the caller's goroutine; a handler may replace the
// payload seen by later handlers and by the caller, or veto the transition by
// returning an error.
//
// This is not a durable log. internal/eventstore subscribes to the dispatcher to
// journal what happened.
package events

import (
	"strings"

	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
	"github.com/wg-federation/wg-federation/internal/model"
)

// Event names a point in the HQ state lifecycle.
type Event string

const (
	StateBeforeCreate Event = "STATE_BEFORE_CREATE"
	StateCreated      Event = "STATE_CREATED"
	StateBeforeUpdate Event = "STATE_BEFORE_UPDATE"
	StateUpdated      Event = "STATE_UPDATED"
	StateLoaded       Event = "STATE_LOADED"

	InterfacesConfigurationBeforeCreate Event = "INTERFACES_CONFIGURATION_BEFORE_CREATE"
	InterfacesConfigurationCreated      Event = "INTERFACES_CONFIGURATION_CREATED"
	InterfacesConfigurationBeforeUpdate Event = "INTERFACES_CONFIGURATION_BEFORE_UPDATE"
	InterfacesConfigurationUpdated      Event = "INTERFACES_CONFIGURATION_UPDATED"

	ForumsConfigurationBeforeCreate Event = "FORUMS_CONFIGURATION_BEFORE_CREATE"
	ForumsConfigurationCreated      Event = "FORUMS_CONFIGURATION_CREATED"
	ForumsConfigurationBeforeUpdate Event = "FORUMS_CONFIGURATION_BEFORE_UPDATE"
	ForumsConfigurationUpdated      Event = "FORUMS_CONFIGURATION_UPDATED"

	PhoneLinesConfigurationBeforeCreate Event = "PHONE_LINES_CONFIGURATION_BEFORE_CREATE"
	PhoneLinesConfigurationCreated      Event = "PHONE_LINES_CONFIGURATION_CREATED"
	PhoneLinesConfigurationBeforeUpdate Event = "PHONE_LINES_CONFIGURATION_BEFORE_UPDATE"
	PhoneLinesConfigurationUpdated      Event = "PHONE_LINES_CONFIGURATION_UPDATED"
)

// Phase is the lifecycle step of a per-configuration event.
type Phase string

const (
	PhaseBeforeCreate Phase = "CONFIGURATION_BEFORE_CREATE"
	PhaseCreated      Phase = "CONFIGURATION_CREATED"
	PhaseBeforeUpdate Phase = "CONFIGURATION_BEFORE_UPDATE"
	PhaseUpdated      Phase = "CONFIGURATION_UPDATED"
)

type configurationKey struct {
	kind  model.InterfaceKind
	phase Phase
}

var configurationEvents = map[configurationKey]Event{
	{model.KindInterface, PhaseBeforeCreate}: InterfacesConfigurationBeforeCreate,
	{model.KindInterface, PhaseCreated}:      InterfacesConfigurationCreated,
	{model.KindInterface, PhaseBeforeUpdate}: InterfacesConfigurationBeforeUpdate,
	{model.KindInterface, PhaseUpdated}:      InterfacesConfigurationUpdated,

	{model.KindForum, PhaseBeforeCreate}: ForumsConfigurationBeforeCreate,
	{model.KindForum, PhaseCreated}:      ForumsConfigurationCreated,
	{model.KindForum, PhaseBeforeUpdate}: ForumsConfigurationBeforeUpdate,
	{model.KindForum, PhaseUpdated}:      ForumsConfigurationUpdated,

	{model.KindPhoneLine, PhaseBeforeCreate}: PhoneLinesConfigurationBeforeCreate,
	{model.KindPhoneLine, PhaseCreated}:      PhoneLinesConfigurationCreated,
	{model.KindPhoneLine, PhaseBeforeUpdate}: PhoneLinesConfigurationBeforeUpdate,
	{model.KindPhoneLine, PhaseUpdated}:      PhoneLinesConfigurationUpdated,
}

// ConfigurationEvent resolves the per-kind event for phase.
func ConfigurationEvent(kind model.InterfaceKind, phase Phase) (Event, error) {
	evt, ok := configurationEvents[configurationKey{kind, phase}]
	if !ok {
		return "", ferrors.ValidationError("no configuration event for kind and phase").
			WithContext("kind", string(kind)).
			WithContext("phase", string(phase)).
			Build()
	}
	return evt, nil
}

// All returns every event in declaration order.
func All() []Event {
	return []Event{
		StateBeforeCreate, StateCreated, StateBeforeUpdate, StateUpdated, StateLoaded,
		InterfacesConfigurationBeforeCreate, InterfacesConfigurationCreated,
		InterfacesConfigurationBeforeUpdate, InterfacesConfigurationUpdated,
		ForumsConfigurationBeforeCreate, ForumsConfigurationCreated,
		ForumsConfigurationBeforeUpdate, ForumsConfigurationUpdated,
		PhoneLinesConfigurationBeforeCreate, PhoneLinesConfigurationCreated,
		PhoneLinesConfigurationBeforeUpdate, PhoneLinesConfigurationUpdated,
	}
}

// Kind returns the interface kind of a per-configuration event.
func (e Event) Kind() (model.InterfaceKind, bool) {
	for key, evt := range configurationEvents {
		if evt == e {
			return key.kind, true
		}
	}
	return "", false
}

// IsBefore reports whether e fires before the transition is persisted.
func (e Event) IsBefore() bool {
	return strings.Contains(string(e), "_BEFORE_")
}

// IsConfiguration reports whether e carries a WireguardConfiguration payload.
func (e Event) IsConfiguration() bool {
	_, ok := e.Kind()
	return ok
}

// Subject maps e to a dotted, lower-case message subject suffix.
func (e Event) Subject() string {
	return strings.ToLower(strings.ReplaceAll(string(e), "_", "."))
}
