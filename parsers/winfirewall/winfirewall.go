// Package winfirewall parses Windows Firewall log files (W3C extended log
// format with the default field set).
//
// Sample content:
//
//	#Version: 1.5
//	#Software: Microsoft Windows Firewall
//	#Time Format: Local
//	#Fields: date time action protocol src-ip dst-ip src-port dst-port size tcpflags tcpsyn tcpack tcpwin icmptype icmpcode info path
//
//	2005-04-11 08:05:57 DROP UDP 123.45.78.90 255.255.255.255 137 137 78 - - - - - - - RECEIVE
package winfirewall

import (
	"fmt"
	"strings"
	"time"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/htime"
	"github.com/trailhound/trailhound/parsers"
	"github.com/trailhound/trailhound/textscan"
)

// PluginName identifies this plugin in event provenance.
const PluginName = "winfirewall"

// DataType tags the event data produced from one log line.
const DataType = "windows:firewall:log_entry"

const requiredHeader = "#Version: 1.5"

var fieldNames = []string{
	"action", "protocol", "source_ip", "dest_ip", "source_port", "dest_port",
	"size", "flags", "tcp_seq", "tcp_ack", "tcp_win", "icmp_type", "icmp_code",
	"info", "path",
}

// Plugin extracts events from Windows Firewall logs. Header comments mutate
// cross-record state (detected version, software name and whether data line
// timestamps are in local time); data lines produce one event each.
type Plugin struct {
	grammar *textscan.CompiledGrammar

	// cross-record state, reset per file
	version          string
	software         string
	useLocalTimezone bool
}

func New() *Plugin {
	grammar, err := textscan.Compile([]textscan.Structure{
		// comments must be declared ahead of the data line grammar: a line
		// like "#Fields: date time ..." must never be tried as a log line
		{Key: "comment", Grammar: textscan.NewGrammar(
			textscan.Literal("#"),
			textscan.Field("comment", textscan.Restline),
		)},
		{Key: "logline", Grammar: textscan.NewGrammar(
			textscan.Field("year", textscan.FourDigits),
			textscan.Literal("-"),
			textscan.Field("month", textscan.TwoDigits),
			textscan.Literal("-"),
			textscan.Field("day", textscan.TwoDigits),
			textscan.Field("hours", textscan.TwoDigits),
			textscan.Literal(":"),
			textscan.Field("minutes", textscan.TwoDigits),
			textscan.Literal(":"),
			textscan.Field("seconds", textscan.TwoDigits),
			textscan.BlankOr("action", textscan.Word),
			textscan.BlankOr("protocol", textscan.Word),
			textscan.BlankOr("source_ip", textscan.IPAddress),
			textscan.BlankOr("dest_ip", textscan.IPAddress),
			textscan.BlankOr("source_port", textscan.Port),
			textscan.BlankOr("dest_port", textscan.Port),
			textscan.BlankOr("size", textscan.Integer),
			textscan.BlankOr("flags", textscan.Word),
			textscan.BlankOr("tcp_seq", textscan.Integer),
			textscan.BlankOr("tcp_ack", textscan.Integer),
			textscan.BlankOr("tcp_win", textscan.Integer),
			textscan.BlankOr("icmp_type", textscan.Integer),
			textscan.BlankOr("icmp_code", textscan.Integer),
			textscan.BlankOr("info", textscan.Word),
			textscan.BlankOr("path", textscan.Word),
		)},
	})
	if err != nil {
		// the grammar is a compile time constant of this package; failing
		// to compile it is a programming error
		panic(err)
	}
	return &Plugin{grammar: grammar}
}

func (p *Plugin) Name() string {
	return PluginName
}

// Encoding returns the fixed encoding of Windows Firewall logs.
func (p *Plugin) Encoding() string {
	return "ascii"
}

// Reset clears the cross-record state derived from header comments.
func (p *Plugin) Reset() {
	p.version = ""
	p.software = ""
	p.useLocalTimezone = false
}

// CheckRequiredFormat reports whether the first line carries the version
// header this plugin supports.
func (p *Plugin) CheckRequiredFormat(m parsers.Mediator, r *textscan.Reader) bool {
	line, err := r.ReadLine()
	if err != nil {
		return false
	}
	return strings.TrimRight(line, " ") == requiredHeader
}

func (p *Plugin) Grammar() *textscan.CompiledGrammar {
	return p.grammar
}

// ParseRecord dispatches one matched record by grammar key.
func (p *Plugin) ParseRecord(m parsers.Mediator, key string, record textscan.Record) error {
	switch key {
	case "comment":
		p.parseCommentRecord(record)
		return nil
	case "logline":
		return p.parseLogLine(m, record)
	}
	return fmt.Errorf("%w: %s", textscan.ErrUnknownRecordKind, key)
}

// parseCommentRecord stores header values that change how later data lines
// are interpreted.
func (p *Plugin) parseCommentRecord(record textscan.Record) {
	comment := record.StringValue("comment")
	switch {
	case strings.HasPrefix(comment, "Version"):
		_, value, _ := strings.Cut(comment, ":")
		p.version = strings.TrimSpace(value)
	case strings.HasPrefix(comment, "Software"):
		_, value, _ := strings.Cut(comment, ":")
		p.software = strings.TrimSpace(value)
	case strings.HasPrefix(comment, "Time"):
		_, value, _ := strings.Cut(comment, ":")
		if strings.Contains(strings.ToLower(value), "local") {
			p.useLocalTimezone = true
		}
	}
}

// parseLogLine combines the six date and time fields of a data line into a
// timestamp and produces one event carrying the remaining fields. Fields
// filled by the "-" sentinel are left out of the event data entirely.
func (p *Plugin) parseLogLine(m parsers.Mediator, record textscan.Record) error {
	timezone := time.UTC
	if p.useLocalTimezone && m.Timezone() != nil {
		timezone = m.Timezone()
	}

	year, _ := record.Value("year").(int)
	month, _ := record.Value("month").(int)
	day, _ := record.Value("day").(int)
	hours, _ := record.Value("hours").(int)
	minutes, _ := record.Value("minutes").(int)
	seconds, _ := record.Value("seconds").(int)

	timestamp, err := htime.Date(year, month, day, hours, minutes, seconds, timezone)
	if err != nil {
		return fmt.Errorf("invalid date time value: %v", err)
	}

	data := event.NewData(DataType)
	for _, name := range fieldNames {
		if value := record.Value(name); value != nil {
			data.Fields[name] = value
		}
	}

	m.ProduceEventWithData(&event.Event{
		Timestamp:   timestamp,
		Description: "Content Written Time",
	}, data)
	return nil
}
