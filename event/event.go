// Package event contains the structs used to pass extracted events between
// parser plugins and the output module.
package event

import "time"

// Data is a flat attribute bag describing one observed fact. Type tags the
// schema of the fields (eg. "windows:firewall:log_entry"). Fields that were
// absent in the source record are omitted from the map entirely rather than
// stored as empty strings.
type Data struct {
	// Type is the schema identifier for the fields in this container
	Type string `json:"data_type"`
	// Fields holds the named attribute values extracted from one record
	Fields map[string]interface{} `json:"fields"`
}

// NewData returns a Data container tagged with the given schema type.
func NewData(dataType string) *Data {
	return &Data{
		Type:   dataType,
		Fields: map[string]interface{}{},
	}
}

// Event is a single timestamped occurrence extracted from an artifact.
type Event struct {
	// Timestamp is the time of the event in the zone the source recorded it
	// in (may be long before current time)
	Timestamp time.Time `json:"timestamp"`
	// Description says what the timestamp means, eg. "Content Written Time"
	Description string `json:"timestamp_desc"`
	// Data is the structured fact the timestamp belongs to
	Data *Data `json:"data"`
}
