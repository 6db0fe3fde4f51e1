package textscan

import (
	"fmt"
	"strings"
)

// MaxConsecutiveLineFailures is the number of consecutive lines that may
// fail to match the grammar before the remainder of the file is abandoned.
const MaxConsecutiveLineFailures = 20

// RecordHandler receives one matched record. A returned error means the
// handler rejected the record; the record is dropped with a warning and
// scanning continues.
type RecordHandler func(key string, record Record) error

// Scanner drives a compiled grammar over a reader, recovering from lines
// that match nothing and stopping only when the input is exhausted, the
// failure budget is spent or an abort is requested.
type Scanner struct {
	Grammar     *CompiledGrammar
	MaxFailures int
}

func NewScanner(grammar *CompiledGrammar) *Scanner {
	return &Scanner{Grammar: grammar, MaxFailures: MaxConsecutiveLineFailures}
}

// Run scans the reader to exhaustion. Every produced event has already been
// handed off through handle by the time Run returns; failures along the way
// surface as extraction warnings, never as a returned error, so output
// produced before a mid-file abort is kept.
func (s *Scanner) Run(m Mediator, r *Reader, handle RecordHandler) {
	consecutiveFailures := 0

	for {
		// a read failure while refilling is fatal to the remaining scan,
		// but output produced so far is kept
		if err := r.Fill(); err != nil {
			m.ProduceExtractionWarning(fmt.Sprintf(
				"unable to read and decode log line at offset %d with error: %v", r.Offset(), err))
			break
		}
		if len(r.Pending()) == 0 {
			break
		}

		if m.AbortRequested() {
			break
		}

		if consecutiveFailures > s.MaxFailures {
			m.ProduceExtractionWarning(fmt.Sprintf(
				"more than %d consecutive failures to parse lines", s.MaxFailures))
			break
		}

		record, err := s.Grammar.Scan(r.Pending())
		if err != nil {
			lineNumber := r.LineNumber()
			line, readErr := r.ReadLine()
			if readErr != nil {
				m.ProduceExtractionWarning(fmt.Sprintf(
					"unable to read and decode log line at offset %d with error: %v", r.Offset(), readErr))
				break
			}
			// empty lines are skipped without spending failure budget
			if strings.TrimSpace(line) == "" {
				continue
			}

			if len(line) > 80 {
				line = line[:77] + "..."
			}
			m.ProduceExtractionWarning(fmt.Sprintf(
				"unable to parse log line: %d %q", lineNumber, line))

			consecutiveFailures++
			continue
		}

		consecutiveFailures = 0

		if err := handle(record.Key, record); err != nil {
			m.ProduceExtractionWarning(fmt.Sprintf(
				"unable to parse record: %s with error: %v", record.Key, err))
		}

		r.Advance(record.End)
	}
}
