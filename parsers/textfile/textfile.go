// Package textfile parses line-oriented text log artifacts. Each registered
// text plugin declares the line grammars of one log format; the parser
// probes each plugin against the file and lets the first plugins that
// recognize it drive the scanning engine over the full content.
package textfile

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/trailhound/trailhound/parsers"
	"github.com/trailhound/trailhound/textscan"
)

// ParserName is the name text plugins register under.
const ParserName = "text"

// Plugin is the capability a text log plugin supplies.
type Plugin interface {
	Name() string
	// Encoding names the plugin's fixed text encoding, or "" to use the
	// caller supplied default.
	Encoding() string
	// Reset clears all cross-record state. Called at the start of every
	// file so state from one artifact never leaks into the next.
	Reset()
	// CheckRequiredFormat is a cheap bounded-prefix probe deciding whether
	// the content belongs to this plugin at all.
	CheckRequiredFormat(m parsers.Mediator, r *textscan.Reader) bool
	// Grammar is the compiled alternation of the plugin's line grammars,
	// built once at construction.
	Grammar() *textscan.CompiledGrammar
	// ParseRecord dispatches one matched record by key. An error classifies
	// the record as bad data; it is warned about and dropped.
	ParseRecord(m parsers.Mediator, key string, record textscan.Record) error
}

// Parser is the text log artifact parser.
type Parser struct {
	registry *parsers.Registry
}

func New(registry *parsers.Registry) *Parser {
	return &Parser{registry: registry}
}

func (p *Parser) Name() string {
	return ParserName
}

// Parse probes every registered text plugin against the artifact and runs
// the scanning engine for each plugin that recognizes it. The read handle
// is released on every exit path.
func (p *Parser) Parse(m parsers.Mediator, h parsers.ArtifactHandle) error {
	if h.Size() <= 0 {
		return &parsers.SizeError{Parser: p.Name(), Name: h.Name(), Size: h.Size()}
	}

	fh, err := h.Open()
	if err != nil {
		return fmt.Errorf("[%s] unable to open %s: %w", p.Name(), h.Name(), err)
	}
	defer fh.Close()

	matched := false
	for _, construct := range p.registry.PluginsFor(ParserName) {
		plugin, ok := construct.(Plugin)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"parser": p.Name(),
				"plugin": fmt.Sprintf("%T", construct),
			}).Warn("registered plugin does not implement the text plugin interface")
			continue
		}

		plugin.Reset()
		pm := parsers.WithProvenance(m, p.Name(), plugin.Name(), h)

		probe, err := p.newReader(pm, fh, plugin)
		if err != nil {
			return err
		}
		if !plugin.CheckRequiredFormat(pm, probe) {
			logrus.WithFields(logrus.Fields{
				"parser": p.Name(),
				"plugin": plugin.Name(),
				"file":   h.Name(),
			}).Debug("wrong plugin for text content")
			continue
		}
		matched = true

		// rewind for the real scan; the probe may have consumed lines
		reader, err := p.newReader(pm, fh, plugin)
		if err != nil {
			return err
		}
		scanner := textscan.NewScanner(plugin.Grammar())
		scanner.Run(pm, reader, func(key string, record textscan.Record) error {
			return plugin.ParseRecord(pm, key, record)
		})
	}

	if !matched {
		return &parsers.FormatError{
			Parser: p.Name(), Name: h.Name(),
			Reason: "no registered text plugin recognizes the content"}
	}
	return nil
}

func (p *Parser) newReader(m parsers.Mediator, fh io.ReadSeeker, plugin Plugin) (*textscan.Reader, error) {
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("[%s] unable to rewind artifact: %w", p.Name(), err)
	}
	encoding := plugin.Encoding()
	if encoding == "" {
		encoding = m.Encoding()
	}
	return textscan.NewReader(fh, encoding, func(offset int64, b byte) {
		m.ProduceExtractionWarning(fmt.Sprintf("error decoding 0x%02x at offset: %d", b, offset))
	})
}
