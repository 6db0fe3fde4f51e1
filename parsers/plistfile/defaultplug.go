package plistfile

import (
	"fmt"
	"sort"
	"time"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/htime"
	"github.com/trailhound/trailhound/parsers"
)

// DefaultPlugin harvests timestamps from any plist whose top level is a
// dictionary. It walks the whole tree and emits one event per date value
// and per string value that parses as a date, keyed by the path of plist
// keys leading to it. More specific plugins should be registered ahead of
// it so their content is claimed first.
type DefaultPlugin struct{}

func NewDefaultPlugin() *DefaultPlugin {
	return &DefaultPlugin{}
}

func (p *DefaultPlugin) Name() string {
	return "plist_default"
}

func (p *DefaultPlugin) Process(m parsers.Mediator, plistName string, topLevel interface{}) ([]*event.Event, error) {
	root, ok := topLevel.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top level is not a dict", parsers.ErrNotApplicable)
	}

	var events []*event.Event
	p.walk(m, plistName, "", root, &events)
	return events, nil
}

func (p *DefaultPlugin) walk(m parsers.Mediator, plistName, path string, node interface{}, events *[]*event.Event) {
	switch value := node.(type) {
	case map[string]interface{}:
		// deterministic event order regardless of map iteration
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			p.walk(m, plistName, path+"/"+key, value[key], events)
		}
	case []interface{}:
		for i, item := range value {
			p.walk(m, plistName, fmt.Sprintf("%s[%d]", path, i), item, events)
		}
	case time.Time:
		*events = append(*events, p.newEvent(plistName, path, value))
	case string:
		ts, err := htime.ParseAny(value, m.Timezone())
		if err != nil || ts.Year() < 1970 || ts.Year() > 2100 {
			return
		}
		*events = append(*events, p.newEvent(plistName, path, ts))
	}
}

func (p *DefaultPlugin) newEvent(plistName, path string, ts time.Time) *event.Event {
	data := event.NewData("plist:key")
	data.Fields["root"] = "/"
	data.Fields["key"] = path
	data.Fields["plist_name"] = plistName
	return &event.Event{
		Timestamp:   ts,
		Description: "Entry Written Time",
		Data:        data,
	}
}
