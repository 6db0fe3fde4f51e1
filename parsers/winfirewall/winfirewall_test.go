package winfirewall

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/parsers"
	"github.com/trailhound/trailhound/parsers/textfile"
	"github.com/trailhound/trailhound/textscan"
)

// mockMediator implements parsers.Mediator for plugin tests.
type mockMediator struct {
	events   []*event.Event
	warnings []string
	zone     *time.Location
}

func (m *mockMediator) ProduceEvent(ev *event.Event, parserName, pluginName string, handle parsers.ArtifactHandle) {
	m.events = append(m.events, ev)
}

func (m *mockMediator) ProduceEventWithData(ev *event.Event, data *event.Data) {
	ev.Data = data
	m.events = append(m.events, ev)
}

func (m *mockMediator) ProduceExtractionWarning(message string) {
	m.warnings = append(m.warnings, message)
}

func (m *mockMediator) AbortRequested() bool { return false }

func (m *mockMediator) Encoding() string { return "ascii" }

func (m *mockMediator) Timezone() *time.Location {
	if m.zone == nil {
		return time.UTC
	}
	return m.zone
}

func scanLog(t *testing.T, m *mockMediator, content string) {
	t.Helper()
	plugin := New()
	plugin.Reset()
	reader, err := textscan.NewReader(strings.NewReader(content), plugin.Encoding(), nil)
	require.NoError(t, err)
	scanner := textscan.NewScanner(plugin.Grammar())
	scanner.Run(m, reader, func(key string, record textscan.Record) error {
		return plugin.ParseRecord(m, key, record)
	})
}

const sampleLog = `#Version: 1.5
#Software: TestFW
#Time: local
#Fields: date time action protocol src-ip dst-ip src-port dst-port size tcpflags tcpsyn tcpack tcpwin icmptype icmpcode info path

2005-04-11 08:05:57 DROP UDP 123.45.78.90 255.255.255.255 137 137 78 - - - - - - - RECEIVE
`

func TestParseLogLineInLocalTimezone(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	m := &mockMediator{zone: denver}

	scanLog(t, m, sampleLog)

	assert.Empty(t, m.warnings)
	require.Len(t, m.events, 1)

	ev := m.events[0]
	assert.Equal(t, time.Date(2005, 4, 11, 8, 5, 57, 0, denver), ev.Timestamp)
	assert.Equal(t, "Content Written Time", ev.Description)

	require.NotNil(t, ev.Data)
	assert.Equal(t, DataType, ev.Data.Type)
	assert.Equal(t, map[string]interface{}{
		"action":      "DROP",
		"protocol":    "UDP",
		"source_ip":   "123.45.78.90",
		"dest_ip":     "255.255.255.255",
		"source_port": int64(137),
		"dest_port":   int64(137),
		"size":        int64(78),
		"path":        "RECEIVE",
	}, ev.Data.Fields, "absent sentinel fields are omitted, never empty strings")
}

func TestParseLogLineDefaultsToUTCWithoutLocalHeader(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	m := &mockMediator{zone: denver}

	scanLog(t, m, strings.Replace(sampleLog, "#Time: local\n", "", 1))

	require.Len(t, m.events, 1)
	assert.Equal(t, time.Date(2005, 4, 11, 8, 5, 57, 0, time.UTC), m.events[0].Timestamp)
}

func TestParseCommentRecordUpdatesState(t *testing.T) {
	plugin := New()
	plugin.Reset()
	m := &mockMediator{}

	for _, line := range []string{"Version: 1.5", "Software: TestFW", "Time Format: Local"} {
		err := plugin.ParseRecord(m, "comment", textscan.Record{
			Tokens: map[string]interface{}{"comment": line},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, "1.5", plugin.version)
	assert.Equal(t, "TestFW", plugin.software)
	assert.True(t, plugin.useLocalTimezone)

	plugin.Reset()
	assert.Equal(t, "", plugin.version)
	assert.Equal(t, "", plugin.software)
	assert.False(t, plugin.useLocalTimezone, "cross-record state must not leak across files")
}

func TestParseRecordUnknownKey(t *testing.T) {
	plugin := New()
	err := plugin.ParseRecord(&mockMediator{}, "nonsense", textscan.Record{})
	assert.ErrorIs(t, err, textscan.ErrUnknownRecordKind)
}

func TestInvalidDateProducesWarningNotEvent(t *testing.T) {
	m := &mockMediator{}
	scanLog(t, m, "#Version: 1.5\n2005-13-41 08:05:57 DROP UDP - - - - - - - - - - - - SEND\n")

	assert.Empty(t, m.events)
	require.Len(t, m.warnings, 1)
	assert.Contains(t, m.warnings[0], "unable to parse record: logline")
}

func TestCheckRequiredFormat(t *testing.T) {
	testcases := []struct {
		description string
		firstLine   string
		expected    bool
	}{
		{"supported version header", "#Version: 1.5\n", true},
		{"unsupported version", "#Version: 2.0\n", false},
		{"not a firewall log at all", "GET /index.html HTTP/1.1\n", false},
	}

	for _, tc := range testcases {
		t.Run(tc.description, func(t *testing.T) {
			plugin := New()
			reader, err := textscan.NewReader(strings.NewReader(tc.firstLine), "ascii", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, plugin.CheckRequiredFormat(&mockMediator{}, reader))
		})
	}
}

// TestEndToEndThroughTextParser exercises the whole dispatch chain: the
// text artifact parser probes the plugin, the scanner drives the grammar
// and the events surface with provenance attached.
func TestEndToEndThroughTextParser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pfirewall.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))

	registry := parsers.NewRegistry()
	registry.RegisterParser(textfile.ParserName, func() parsers.ArtifactParser {
		return textfile.New(registry)
	})
	registry.RegisterPlugin(textfile.ParserName, PluginName, func() interface{} {
		return New()
	})

	m := &mockMediator{}
	parser := registry.NewParser(textfile.ParserName)
	require.NoError(t, parser.Parse(m, &testHandle{path: path}))

	require.Len(t, m.events, 1)
	assert.Empty(t, m.warnings)
}

type testHandle struct {
	path string
}

func (h *testHandle) Open() (io.ReadSeekCloser, error) { return os.Open(h.path) }

func (h *testHandle) Size() int64 {
	info, err := os.Stat(h.path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func (h *testHandle) Name() string     { return h.path }
func (h *testHandle) Basename() string { return filepath.Base(h.path) }
