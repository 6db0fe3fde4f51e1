package parsers

import "github.com/trailhound/trailhound/event"

// provenanceMediator decorates a mediator with the identity of the parser
// and plugin currently processing an artifact, so plugins can publish
// events without threading provenance through every handler. The context
// travels in the value instead of in mutable parser state, so reusing a
// plugin instance across files cannot mix provenance up.
type provenanceMediator struct {
	Mediator
	parserName string
	pluginName string
	handle     ArtifactHandle
}

// WithProvenance returns a mediator that attributes every event published
// through ProduceEventWithData to the given parser, plugin and artifact.
func WithProvenance(m Mediator, parserName, pluginName string, handle ArtifactHandle) Mediator {
	return &provenanceMediator{
		Mediator:   m,
		parserName: parserName,
		pluginName: pluginName,
		handle:     handle,
	}
}

func (pm *provenanceMediator) ProduceEventWithData(ev *event.Event, data *event.Data) {
	ev.Data = data
	pm.Mediator.ProduceEvent(ev, pm.parserName, pm.pluginName, pm.handle)
}
