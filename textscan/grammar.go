// Package textscan implements the grammar driven line scanning engine used
// by the text artifact parser. A plugin declares the token shape of each
// line kind it understands; the engine compiles those declarations into one
// alternation, matches a single record per scan and keeps scanning past
// lines it cannot make sense of.
package textscan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNoMatch means no grammar alternative matched at the start of the
	// current logical line.
	ErrNoMatch = errors.New("no grammar alternative matched")

	// ErrMalformedGrammar means the compiled grammar produced an
	// inconsistent match. This is a plugin authoring bug, not a data error.
	ErrMalformedGrammar = errors.New("malformed grammar")

	// ErrUnknownRecordKind is returned by a plugin's record handler when it
	// is handed a key it has no handler for. Grammar keys and handler keys
	// must be statically identical sets, so this is a plugin authoring bug.
	ErrUnknownRecordKind = errors.New("unknown record kind")
)

// Absent marks a token whose position in the line was filled by the blank
// sentinel ("-"). It is distinct from a missing token and from an empty
// string value.
type AbsentValue struct{}

var Absent = AbsentValue{}

func (AbsentValue) String() string { return "-" }

// Kind selects the character shape and value conversion of a field term.
type Kind int

const (
	// Word matches a run of alphanumerics, optionally with interior dashes
	Word Kind = iota
	// Integer matches a run of digits, converted to int64
	Integer
	// TwoDigits matches exactly two digits, converted to int
	TwoDigits
	// FourDigits matches exactly four digits, converted to int
	FourDigits
	// Port matches up to six digits, converted to int64
	Port
	// IPAddress matches an IPv4 or IPv6 address
	IPAddress
	// Restline matches everything up to the end of the line
	Restline
)

func (k Kind) pattern() string {
	switch k {
	case Word:
		return `[0-9A-Za-z][0-9A-Za-z-]*`
	case Integer:
		return `\d+`
	case TwoDigits:
		return `\d{2}`
	case FourDigits:
		return `\d{4}`
	case Port:
		return `\d{1,6}`
	case IPAddress:
		return `(?:\d{1,3}(?:\.\d{1,3}){3}|[0-9A-Fa-f:]*:[0-9A-Fa-f:]*:[0-9A-Fa-f:.]+)`
	case Restline:
		return `[^\n]*`
	}
	return ""
}

func (k Kind) convert(s string) interface{} {
	switch k {
	case Integer, Port:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return s
		}
		return n
	case TwoDigits, FourDigits:
		n, err := strconv.Atoi(s)
		if err != nil {
			return s
		}
		return n
	}
	return s
}

// Term is one element of a line grammar: a literal, a captured field, or a
// field that may be replaced by the blank sentinel.
type Term struct {
	name      string
	kind      Kind
	literal   string
	blankable bool
}

// Literal matches fixed text without capturing it.
func Literal(text string) Term {
	return Term{literal: text}
}

// Field captures one token of the given kind under the given name.
func Field(name string, kind Kind) Term {
	return Term{name: name, kind: kind}
}

// BlankOr captures one token of the given kind, or accepts the literal "-"
// in its place. A matched "-" maps the token to Absent.
func BlankOr(name string, kind Kind) Term {
	return Term{name: name, kind: kind, blankable: true}
}

// LineGrammar is the declarative description of the token shape of one line
// kind. Terms are separated by runs of plain spaces; tabs are never treated
// as separators so reported offsets correspond 1:1 to input bytes.
type LineGrammar struct {
	terms []Term
}

func NewGrammar(terms ...Term) LineGrammar {
	return LineGrammar{terms: terms}
}

// Structure pairs a line grammar with its unique key within a plugin.
type Structure struct {
	Key     string
	Grammar LineGrammar
}

// Record is the result of one grammar match: the key of the alternative
// that matched, the captured token values and the start and end byte
// offsets of the match within the scanned buffer.
type Record struct {
	Key    string
	Tokens map[string]interface{}
	Start  int
	End    int
}

// Value returns the token value for name, or nil when the token is missing
// or was matched by the blank sentinel.
func (r Record) Value(name string) interface{} {
	v, ok := r.Tokens[name]
	if !ok {
		return nil
	}
	if _, absent := v.(AbsentValue); absent {
		return nil
	}
	return v
}

// StringValue returns the stripped token string for name, or "" when the
// token is missing, absent or not a string.
func (r Record) StringValue(name string) string {
	s, _ := r.Value(name).(string)
	return strings.TrimSpace(s)
}

type alternative struct {
	key    string
	re     *regexp.Regexp
	fields map[string]Term
}

// CompiledGrammar is the ordered alternation of every line grammar a plugin
// registered. It is built once at plugin construction and immutable after.
type CompiledGrammar struct {
	alts []alternative
}

// Compile translates the declared grammars into one ordered alternation.
// Declaration order is significant: when two alternatives match at the same
// position, the first one declared wins. Plugins rely on this to order
// ambiguous alternatives intentionally, eg. comment lines before data lines.
func Compile(structures []Structure) (*CompiledGrammar, error) {
	if len(structures) == 0 {
		return nil, fmt.Errorf("%w: no line grammars declared", ErrMalformedGrammar)
	}
	compiled := &CompiledGrammar{}
	seen := map[string]bool{}
	for _, s := range structures {
		if s.Key == "" {
			return nil, fmt.Errorf("%w: line grammar without a key", ErrMalformedGrammar)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("%w: duplicate line grammar key %q", ErrMalformedGrammar, s.Key)
		}
		seen[s.Key] = true

		alt, err := compileGrammar(s.Key, s.Grammar)
		if err != nil {
			return nil, err
		}
		compiled.alts = append(compiled.alts, alt)
	}
	return compiled, nil
}

func compileGrammar(key string, g LineGrammar) (alternative, error) {
	var pat strings.Builder
	fields := map[string]Term{}
	for i, term := range g.terms {
		if i > 0 {
			// only the plain space character separates tokens; tabs are
			// matched literally so byte offsets stay exact
			pat.WriteString(`[ ]*`)
		}
		switch {
		case term.literal != "":
			pat.WriteString(regexp.QuoteMeta(term.literal))
		case term.name != "":
			if _, dup := fields[term.name]; dup {
				return alternative{}, fmt.Errorf(
					"%w: duplicate field %q in grammar %q", ErrMalformedGrammar, term.name, key)
			}
			fields[term.name] = term
			sub := term.kind.pattern()
			if term.blankable {
				sub = `(?:` + sub + `|-)`
			}
			pat.WriteString(`(?P<` + term.name + `>` + sub + `)`)
		default:
			return alternative{}, fmt.Errorf(
				"%w: empty term in grammar %q", ErrMalformedGrammar, key)
		}
	}
	re, err := regexp.Compile(pat.String())
	if err != nil {
		return alternative{}, fmt.Errorf("%w: grammar %q: %v", ErrMalformedGrammar, key, err)
	}
	// a grammar matching zero characters would make the scan loop spin
	// without consuming input
	if re.MatchString("") {
		return alternative{}, fmt.Errorf(
			"%w: grammar %q can match the empty string", ErrMalformedGrammar, key)
	}
	return alternative{key: key, re: re, fields: fields}, nil
}

// Scan searches buf for the single leftmost occurrence of any alternative.
// Alternatives matching earlier in the buffer win; ties at the same start
// offset are broken by declaration order. A match that starts after a line
// terminator is rejected, since a match may only begin at the start of a
// logical line.
func (g *CompiledGrammar) Scan(buf string) (Record, error) {
	bestIdx := -1
	var bestLoc []int
	for i, alt := range g.alts {
		loc := alt.re.FindStringSubmatchIndex(buf)
		if loc == nil {
			continue
		}
		if bestIdx == -1 || loc[0] < bestLoc[0] {
			bestIdx = i
			bestLoc = loc
		}
	}
	if bestIdx == -1 {
		return Record{}, ErrNoMatch
	}
	start, end := bestLoc[0], bestLoc[1]
	if start > 0 && strings.Contains(buf[:start+1], "\n") {
		return Record{}, fmt.Errorf("%w: found a line preceding the match", ErrNoMatch)
	}

	alt := g.alts[bestIdx]
	names := alt.re.SubexpNames()
	if len(names)-1 != len(alt.fields) {
		// cannot happen with grammars built through Compile
		return Record{}, fmt.Errorf("%w: capture set of %q does not match its fields",
			ErrMalformedGrammar, alt.key)
	}

	tokens := make(map[string]interface{}, len(alt.fields))
	for i, name := range names {
		if i == 0 || name == "" {
			continue
		}
		s, e := bestLoc[2*i], bestLoc[2*i+1]
		if s < 0 {
			continue
		}
		text := buf[s:e]
		term := alt.fields[name]
		if term.blankable && text == "-" {
			tokens[name] = Absent
			continue
		}
		tokens[name] = term.kind.convert(text)
	}
	return Record{Key: alt.key, Tokens: tokens, Start: start, End: end}, nil
}
