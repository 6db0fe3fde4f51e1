// Package parsers defines the contracts between the extraction engine and
// the format specific artifact parsers.
//
// An ArtifactParser owns whole-file concerns: size validation,
// deserialization or text scanning, and dispatch to the plugins registered
// for it. Plugins hold the per-format record logic and publish events
// through the Mediator.
package parsers

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/trailhound/trailhound/event"
)

// Mediator is the capability through which parsers and plugins talk to the
// surrounding system: it accepts events and warnings and supplies the
// per-run decoding and time zone configuration. It is passed explicitly
// down the call chain; parsers never retain it across calls.
type Mediator interface {
	// ProduceEvent publishes one event together with its provenance.
	ProduceEvent(ev *event.Event, parserName, pluginName string, handle ArtifactHandle)
	// ProduceEventWithData attaches data to ev and publishes it under the
	// provenance of the current parser and plugin.
	ProduceEventWithData(ev *event.Event, data *event.Data)
	// ProduceExtractionWarning reports a recoverable problem with enough
	// context to locate it in the source file.
	ProduceExtractionWarning(message string)
	// AbortRequested reports whether the surrounding system wants the scan
	// to stop. Checked once per scan iteration; purely cooperative.
	AbortRequested() bool
	// Encoding is the default character encoding for text artifacts.
	Encoding() string
	// Timezone is the zone for timestamps recorded in local time.
	Timezone() *time.Location
}

// ArtifactHandle is the filesystem/volume abstraction that yields the bytes
// of one artifact. Open grants scoped read access; the caller must release
// the handle on every exit path.
type ArtifactHandle interface {
	Open() (io.ReadSeekCloser, error)
	Size() int64
	Name() string
	Basename() string
}

// ArtifactParser validates and processes one whole artifact, fanning the
// content out to its registered plugins.
type ArtifactParser interface {
	Name() string
	Parse(m Mediator, h ArtifactHandle) error
}

// ErrNotApplicable is returned by a plugin that determined mid-processing
// that the content does not belong to it. It is a silent skip, not a data
// error: callers log it at debug level and move on.
var ErrNotApplicable = errors.New("content not applicable to this plugin")

// SizeError means the artifact's byte length is outside the bounds a parser
// will even attempt to deserialize.
type SizeError struct {
	Parser string
	Name   string
	Size   int64
	Max    int64
}

func (e *SizeError) Error() string {
	if e.Size <= 0 {
		return fmt.Sprintf("[%s] file size: %d bytes is less equal 0", e.Parser, e.Size)
	}
	return fmt.Sprintf("[%s] file size: %d bytes is larger than %d bytes", e.Parser, e.Size, e.Max)
}

// FormatError means whole-file deserialization failed: the artifact is not
// a well formed instance of the parser's format.
type FormatError struct {
	Parser string
	Name   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] unable to parse %s: %s: %v", e.Parser, e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("[%s] unable to parse %s: %s", e.Parser, e.Name, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }
