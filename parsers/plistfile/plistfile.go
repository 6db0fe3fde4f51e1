// Package plistfile parses Apple property list artifacts. The parser
// deserializes the whole file into a tree of plain Go values and hands the
// tree to every registered plist plugin; the plugins hold the knowledge of
// which keys carry timestamps worth extracting.
package plistfile

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"howett.net/plist"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/parsers"
)

// ParserName is the name plist plugins register under.
const ParserName = "plist"

// MaxFileSize is 10x larger than any plist seen to date.
const MaxFileSize = 50000000

// Plugin is the capability a plist plugin supplies: given the deserialized
// top level of a plist it either returns the events it found or
// parsers.ErrNotApplicable when the content belongs to some other plugin.
type Plugin interface {
	Name() string
	Process(m parsers.Mediator, plistName string, topLevel interface{}) ([]*event.Event, error)
}

// Parser is the property list artifact parser.
type Parser struct {
	registry *parsers.Registry
}

func New(registry *parsers.Registry) *Parser {
	return &Parser{registry: registry}
}

func (p *Parser) Name() string {
	return ParserName
}

// Parse validates the artifact's size, deserializes it and dispatches the
// resulting tree to each registered plugin in registration order. The read
// handle is released on every exit path.
func (p *Parser) Parse(m parsers.Mediator, h parsers.ArtifactHandle) error {
	fh, err := h.Open()
	if err != nil {
		return fmt.Errorf("[%s] unable to open %s: %w", p.Name(), h.Name(), err)
	}
	defer fh.Close()

	size := h.Size()
	if size <= 0 || size > MaxFileSize {
		return &parsers.SizeError{Parser: p.Name(), Name: h.Name(), Size: size, Max: MaxFileSize}
	}

	topLevel, err := p.topLevel(fh, h.Name())
	if err != nil {
		return err
	}

	plistName := h.Basename()
	for _, construct := range p.registry.PluginsFor(ParserName) {
		plugin, ok := construct.(Plugin)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"parser": p.Name(),
				"plugin": fmt.Sprintf("%T", construct),
			}).Warn("registered plugin does not implement the plist plugin interface")
			continue
		}

		events, err := plugin.Process(m, plistName, topLevel)
		if errors.Is(err, parsers.ErrNotApplicable) {
			logrus.WithFields(logrus.Fields{
				"parser": p.Name(),
				"plugin": plugin.Name(),
				"plist":  plistName,
			}).Debug("wrong plugin for plist content")
			continue
		}
		if err != nil {
			m.ProduceExtractionWarning(fmt.Sprintf(
				"[%s] plugin: %s unable to process %s: %v", p.Name(), plugin.Name(), plistName, err))
			continue
		}
		for _, ev := range events {
			m.ProduceEvent(ev, p.Name(), plugin.Name(), h)
		}
	}
	return nil
}

// topLevel returns the deserialized content of the plist. Every failure
// mode of deserialization maps to a FormatError with a message telling the
// classes apart: a malformed container, a decode error inside nested
// structures, or an implausible size prefix.
func (p *Parser) topLevel(fh io.ReadSeeker, name string) (interface{}, error) {
	var topLevel interface{}
	decoder := plist.NewDecoder(fh)
	if err := decoder.Decode(&topLevel); err != nil {
		return nil, p.formatError(name, err)
	}
	if emptyTopLevel(topLevel) {
		return nil, &parsers.FormatError{
			Parser: p.Name(), Name: name, Reason: "file is not a plist, empty result"}
	}
	return topLevel, nil
}

// emptyTopLevel reports whether deserialization produced nothing worth
// dispatching: no value at all, or a top level container with no entries.
func emptyTopLevel(topLevel interface{}) bool {
	switch v := topLevel.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(v) == 0
	case []interface{}:
		return len(v) == 0
	}
	return false
}

func (p *Parser) formatError(name string, err error) error {
	reason := "file is not a plist file"
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "overflow") || strings.Contains(msg, "too large"):
		reason = "arithmetic overflow while decoding size-prefixed structure"
	case strings.Contains(msg, "range") || strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "unexpected"):
		reason = "unable to decode nested structure"
	}
	return &parsers.FormatError{Parser: p.Name(), Name: name, Reason: reason, Err: err}
}
