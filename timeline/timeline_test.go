package timeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhound/trailhound/event"
)

func openTestStore(t *testing.T, runID string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "timeline.db"), runID)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func firewallEvent(ts time.Time) *event.Event {
	data := event.NewData("windows:firewall:log_entry")
	data.Fields["action"] = "DROP"
	data.Fields["dest_port"] = int64(137)
	return &event.Event{
		Timestamp:   ts,
		Description: "Content Written Time",
		Data:        data,
	}
}

func TestInsertAndCount(t *testing.T) {
	store := openTestStore(t, "run-1")

	ts := time.Date(2005, 4, 11, 8, 5, 57, 0, time.UTC)
	require.NoError(t, store.Insert(firewallEvent(ts), "text", "winfirewall", "pfirewall.log"))
	require.NoError(t, store.Insert(firewallEvent(ts.Add(time.Second)), "text", "winfirewall", "pfirewall.log"))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCountIsScopedToRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timeline.db")

	first, err := Open(path, "run-1")
	require.NoError(t, err)
	ts := time.Date(2005, 4, 11, 8, 5, 57, 0, time.UTC)
	require.NoError(t, first.Insert(firewallEvent(ts), "text", "winfirewall", "a.log"))
	require.NoError(t, first.Close())

	second, err := Open(path, "run-2")
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Insert(firewallEvent(ts), "text", "winfirewall", "b.log"))

	n, err := second.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "counts must not leak across runs sharing one database")
}

func TestInsertStoresColumnsAndExtraFields(t *testing.T) {
	store := openTestStore(t, "run-1")

	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	ts := time.Date(2005, 4, 11, 8, 5, 57, 0, denver)
	require.NoError(t, store.Insert(firewallEvent(ts), "text", "winfirewall", "pfirewall.log"))

	var datetime, zone, dataType, parser, plugin, filename, extra string
	row := store.db.QueryRow(
		`SELECT datetime, timezone, data_type, parser, plugin, filename, extra FROM events`)
	require.NoError(t, row.Scan(&datetime, &zone, &dataType, &parser, &plugin, &filename, &extra))

	assert.Equal(t, "2005-04-11T08:05:57-06:00", datetime)
	assert.Equal(t, "MDT", zone)
	assert.Equal(t, "windows:firewall:log_entry", dataType)
	assert.Equal(t, "text", parser)
	assert.Equal(t, "winfirewall", plugin)
	assert.Equal(t, "pfirewall.log", filename)
	assert.JSONEq(t, `{"action": "DROP", "dest_port": 137}`, extra)
}

func TestInsertEventWithoutData(t *testing.T) {
	store := openTestStore(t, "run-1")

	ev := &event.Event{
		Timestamp:   time.Date(2005, 4, 11, 8, 5, 57, 0, time.UTC),
		Description: "Entry Written Time",
	}
	require.NoError(t, store.Insert(ev, "plist", "plist_default", "test.plist"))

	var dataType, extra string
	row := store.db.QueryRow(`SELECT data_type, extra FROM events`)
	require.NoError(t, row.Scan(&dataType, &extra))
	assert.Equal(t, "", dataType)
	assert.Equal(t, "{}", extra)
}
