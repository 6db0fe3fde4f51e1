package textfile

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/parsers"
	"github.com/trailhound/trailhound/textscan"
)

type mockMediator struct {
	events   []*event.Event
	parsers  []string
	plugins  []string
	warnings []string
	encoding string
}

func (m *mockMediator) ProduceEvent(ev *event.Event, parserName, pluginName string, handle parsers.ArtifactHandle) {
	m.events = append(m.events, ev)
	m.parsers = append(m.parsers, parserName)
	m.plugins = append(m.plugins, pluginName)
}

func (m *mockMediator) ProduceEventWithData(ev *event.Event, data *event.Data) {
	ev.Data = data
	m.events = append(m.events, ev)
}

func (m *mockMediator) ProduceExtractionWarning(message string) {
	m.warnings = append(m.warnings, message)
}

func (m *mockMediator) AbortRequested() bool { return false }

func (m *mockMediator) Encoding() string {
	if m.encoding == "" {
		return "utf-8"
	}
	return m.encoding
}

func (m *mockMediator) Timezone() *time.Location { return time.UTC }

type memHandle struct {
	name    string
	content []byte
	size    int64
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

func (h *memHandle) Open() (io.ReadSeekCloser, error) {
	return nopCloser{bytes.NewReader(h.content)}, nil
}

func (h *memHandle) Size() int64      { return h.size }
func (h *memHandle) Name() string     { return "/var/log/" + h.name }
func (h *memHandle) Basename() string { return h.name }

func newMemHandle(name, content string) *memHandle {
	return &memHandle{name: name, content: []byte(content), size: int64(len(content))}
}

// fakePlugin is a minimal text plugin for exercising the parser's probe
// and dispatch machinery. It records every probe line it sees and emits
// one event per matched entry line.
type fakePlugin struct {
	name     string
	encoding string
	accept   bool
	grammar  *textscan.CompiledGrammar

	probed []string
	resets int
}

func newFakePlugin(t *testing.T, name string, accept bool) *fakePlugin {
	t.Helper()
	grammar, err := textscan.Compile([]textscan.Structure{
		{Key: "entry", Grammar: textscan.NewGrammar(
			textscan.Field("seq", textscan.Integer),
			textscan.Field("message", textscan.Restline),
		)},
	})
	require.NoError(t, err)
	return &fakePlugin{name: name, accept: accept, grammar: grammar}
}

func (p *fakePlugin) Name() string     { return p.name }
func (p *fakePlugin) Encoding() string { return p.encoding }
func (p *fakePlugin) Reset()           { p.resets++ }

func (p *fakePlugin) CheckRequiredFormat(m parsers.Mediator, r *textscan.Reader) bool {
	line, err := r.ReadLine()
	if err != nil {
		return false
	}
	p.probed = append(p.probed, line)
	return p.accept
}

func (p *fakePlugin) Grammar() *textscan.CompiledGrammar { return p.grammar }

func (p *fakePlugin) ParseRecord(m parsers.Mediator, key string, record textscan.Record) error {
	data := event.NewData("test:log:entry")
	data.Fields["seq"] = record.Value("seq")
	data.Fields["message"] = record.StringValue("message")
	m.ProduceEventWithData(&event.Event{
		Timestamp:   time.Date(2005, 4, 11, 8, 5, 57, 0, time.UTC),
		Description: "Content Written Time",
	}, data)
	return nil
}

func registryWith(t *testing.T, plugins ...*fakePlugin) *parsers.Registry {
	t.Helper()
	registry := parsers.NewRegistry()
	registry.RegisterParser(ParserName, func() parsers.ArtifactParser {
		return New(registry)
	})
	for _, plugin := range plugins {
		p := plugin
		registry.RegisterPlugin(ParserName, p.name, func() interface{} { return p })
	}
	return registry
}

func TestParseRejectsEmptyArtifact(t *testing.T) {
	testcases := []struct {
		description string
		size        int64
	}{
		{"zero length", 0},
		{"unknown length", -1},
	}

	for _, tc := range testcases {
		t.Run(tc.description, func(t *testing.T) {
			plugin := newFakePlugin(t, "fake", true)
			parser := New(registryWith(t, plugin))
			m := &mockMediator{}

			err := parser.Parse(m, &memHandle{name: "empty.log", size: tc.size})

			var sizeErr *parsers.SizeError
			require.ErrorAs(t, err, &sizeErr)
			assert.Equal(t, tc.size, sizeErr.Size)
			assert.Empty(t, plugin.probed, "no plugin is probed for an empty artifact")
		})
	}
}

func TestParseNoPluginRecognizesContent(t *testing.T) {
	first := newFakePlugin(t, "first", false)
	second := newFakePlugin(t, "second", false)
	parser := New(registryWith(t, first, second))
	m := &mockMediator{}

	err := parser.Parse(m, newMemHandle("strange.log", "1 hello\n"))

	var formatErr *parsers.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Reason, "no registered text plugin")
	assert.Empty(t, m.events)
	assert.Empty(t, m.warnings, "a rejected probe is silent, not a warning")
	assert.Equal(t, []string{"1 hello"}, first.probed, "every plugin gets a probe")
	assert.Equal(t, []string{"1 hello"}, second.probed)
}

func TestParseScansContentForRecognizingPlugin(t *testing.T) {
	skipped := newFakePlugin(t, "skipped", false)
	matched := newFakePlugin(t, "matched", true)
	parser := New(registryWith(t, skipped, matched))
	m := &mockMediator{}

	require.NoError(t, parser.Parse(m, newMemHandle("app.log", "1 hello\n2 world\n")))

	require.Len(t, m.events, 2)
	assert.Equal(t, []string{ParserName, ParserName}, m.parsers)
	assert.Equal(t, []string{"matched", "matched"}, m.plugins,
		"events carry the provenance of the plugin that claimed the content")
	assert.Equal(t, "world", m.events[1].Data.Fields["message"])

	assert.Equal(t, 1, skipped.resets, "state is reset before every probe")
	assert.Equal(t, 1, matched.resets)
	require.Len(t, matched.probed, 1, "the scan rewinds instead of reusing the probe reader")
}

func TestParseUsesMediatorEncodingWhenPluginDeclaresNone(t *testing.T) {
	plugin := newFakePlugin(t, "fallback", false)
	parser := New(registryWith(t, plugin))
	m := &mockMediator{encoding: "windows-1252"}

	// 0xe9 is é in windows-1252 and invalid as a UTF-8 start byte
	err := parser.Parse(m, newMemHandle("latin.log", "caf\xe9\n"))

	var formatErr *parsers.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, []string{"café"}, plugin.probed,
		"a plugin without a fixed encoding reads through the mediator default")
	assert.Empty(t, m.warnings, "nothing to substitute when the right codec is used")
}

func TestParsePluginEncodingOverridesMediatorDefault(t *testing.T) {
	plugin := newFakePlugin(t, "strict", false)
	plugin.encoding = "ascii"
	parser := New(registryWith(t, plugin))
	m := &mockMediator{encoding: "windows-1252"}

	err := parser.Parse(m, newMemHandle("latin.log", "caf\xe9\n"))

	var formatErr *parsers.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, []string{`caf\xe9`}, plugin.probed)
	require.Len(t, m.warnings, 1)
	assert.Contains(t, m.warnings[0], "error decoding 0xe9 at offset: 3")
}
