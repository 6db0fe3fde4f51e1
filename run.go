package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	libhoney "github.com/honeycombio/libhoney-go"
	"github.com/sirupsen/logrus"

	"github.com/trailhound/trailhound/event"
	"github.com/trailhound/trailhound/parsers"
	"github.com/trailhound/trailhound/parsers/plistfile"
	"github.com/trailhound/trailhound/parsers/textfile"
	"github.com/trailhound/trailhound/parsers/winfirewall"
	"github.com/trailhound/trailhound/timeline"
)

// envelope is one extracted event together with its provenance, ready for
// the output sinks.
type envelope struct {
	*event.Event
	Parser   string `json:"parser"`
	Plugin   string `json:"plugin"`
	Artifact string `json:"artifact"`
	RunID    string `json:"run_id"`
}

// buildRegistry wires up every parser and plugin trailhound ships with.
// Registration order matters twice over: parsers are attempted per artifact
// in this order, and plugins within a parser claim content in this order.
func buildRegistry() *parsers.Registry {
	registry := parsers.NewRegistry()
	registry.RegisterParser(plistfile.ParserName, func() parsers.ArtifactParser {
		return plistfile.New(registry)
	})
	registry.RegisterParser(textfile.ParserName, func() parsers.ArtifactParser {
		return textfile.New(registry)
	})
	registry.RegisterPlugin(plistfile.ParserName, "plist_default", func() interface{} {
		return plistfile.NewDefaultPlugin()
	})
	registry.RegisterPlugin(textfile.ParserName, winfirewall.PluginName, func() interface{} {
		return winfirewall.New()
	})
	return registry
}

// actually go and hunt for timestamps
func run(options GlobalOptions) {
	logrus.Info("Starting trailhound")

	zone, err := time.LoadLocation(options.Timezone)
	if err != nil {
		logrus.WithFields(logrus.Fields{"timezone": options.Timezone, "err": err}).Fatal(
			"unknown time zone name")
	}

	runID := uuid.NewString()
	stats := newRunStats()
	registry := buildRegistry()

	parserNames := registry.ParserNames()
	if len(options.Parsers) != 0 {
		parserNames = options.Parsers
		for _, name := range parserNames {
			if registry.NewParser(name) == nil {
				logrus.WithFields(logrus.Fields{"parser": name}).Fatal(
					"unknown parser name, see --list for what's available")
			}
		}
	}

	// expand any globs so the worker pool only ever sees real files
	var artifactPaths []string
	for _, pattern := range options.Reqs.Artifacts {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			logrus.WithFields(logrus.Fields{"pattern": pattern, "err": err}).Fatal(
				"bad artifact file pattern")
		}
		artifactPaths = append(artifactPaths, matches...)
	}
	if len(artifactPaths) == 0 {
		logrus.Fatal("No artifact files matched. Nothing to do.")
	}

	// set up our signal handler and support cooperative aborting
	var abort atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		fmt.Fprintf(os.Stderr, "Aborting! Caught signal \"%s\"\n", sig)
		fmt.Fprintf(os.Stderr, "Finishing in-flight scans...\n")
		abort.Store(true)
		// and if they insist, catch a second CTRL-C or timeout on 10sec
		select {
		case <-sigs:
			fmt.Fprintf(os.Stderr, "Caught second signal... Aborting.\n")
			os.Exit(1)
		case <-time.After(10 * time.Second):
			fmt.Fprintf(os.Stderr, "Taking too long... Aborting.\n")
			os.Exit(1)
		}
	}()

	toBeSent := make(chan envelope, 2*options.NumWorkers)
	doneSending := make(chan bool)
	go sendToSinks(options, runID, toBeSent, stats, doneSending)

	go logStats(stats, options.StatusInterval)

	// the worker pool: each worker takes artifact paths off the channel and
	// runs every registered parser against them
	paths := make(chan string)
	workersWG := sync.WaitGroup{}
	for i := uint(0); i < options.NumWorkers; i++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			for path := range paths {
				processArtifact(options, registry, parserNames, path, zone, runID, &abort, toBeSent, stats)
			}
		}()
	}
	for _, path := range artifactPaths {
		if abort.Load() {
			break
		}
		paths <- path
	}
	close(paths)
	workersWG.Wait()

	close(toBeSent)
	<-doneSending

	stats.logFinal()
	logrus.Info("Trailhound is all done, goodbye!")
}

// processArtifact runs every registered parser against one artifact. A
// parser rejecting the file (wrong size, wrong format) only means the next
// parser gets a try; it never stops the run.
func processArtifact(options GlobalOptions, registry *parsers.Registry, parserNames []string,
	path string, zone *time.Location, runID string, abort *atomic.Bool,
	toBeSent chan<- envelope, stats *runStats) {

	handle := &fileHandle{path: path}
	mediator := &cliMediator{
		encoding: options.Encoding,
		zone:     zone,
		runID:    runID,
		abort:    abort,
		out:      toBeSent,
		stats:    stats,
		handle:   handle,
	}

	stats.fileStarted()
	for _, parserName := range parserNames {
		parser := registry.NewParser(parserName)
		err := parser.Parse(mediator, handle)
		if err == nil {
			continue
		}

		var sizeErr *parsers.SizeError
		var formatErr *parsers.FormatError
		switch {
		case errors.As(err, &sizeErr) || errors.As(err, &formatErr):
			logrus.WithFields(logrus.Fields{
				"artifact": path,
				"parser":   parserName,
				"err":      err,
			}).Debug("artifact rejected by parser")
		default:
			logrus.WithFields(logrus.Fields{
				"artifact": path,
				"parser":   parserName,
				"err":      err,
			}).Warn("error while parsing artifact")
		}
	}
}

// fileHandle adapts one filesystem path to the parsers.ArtifactHandle
// capability.
type fileHandle struct {
	path string
}

func (h *fileHandle) Open() (io.ReadSeekCloser, error) {
	return os.Open(h.path)
}

func (h *fileHandle) Size() int64 {
	info, err := os.Stat(h.path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func (h *fileHandle) Name() string {
	return h.path
}

func (h *fileHandle) Basename() string {
	return filepath.Base(h.path)
}

// cliMediator is the parsers.Mediator implementation for CLI runs: events
// go to the sink channel, warnings go to the user via logrus.
type cliMediator struct {
	encoding string
	zone     *time.Location
	runID    string
	abort    *atomic.Bool
	out      chan<- envelope
	stats    *runStats

	handle parsers.ArtifactHandle
}

func (m *cliMediator) ProduceEvent(ev *event.Event, parserName, pluginName string, handle parsers.ArtifactHandle) {
	artifact := ""
	if handle != nil {
		artifact = handle.Name()
	}
	m.stats.eventProduced(parserName, pluginName)
	m.out <- envelope{
		Event:    ev,
		Parser:   parserName,
		Plugin:   pluginName,
		Artifact: artifact,
		RunID:    m.runID,
	}
}

func (m *cliMediator) ProduceEventWithData(ev *event.Event, data *event.Data) {
	ev.Data = data
	m.ProduceEvent(ev, "", "", m.handle)
}

func (m *cliMediator) ProduceExtractionWarning(message string) {
	m.stats.warningProduced()
	logrus.WithFields(logrus.Fields{"warning": message}).Warn("extraction warning")
}

func (m *cliMediator) AbortRequested() bool {
	return m.abort.Load()
}

func (m *cliMediator) Encoding() string {
	return m.encoding
}

func (m *cliMediator) Timezone() *time.Location {
	return m.zone
}

// sendToSinks reads extracted events off the channel and hands each one to
// the configured sinks: STDOUT as JSON lines, the SQLite timeline store and
// the optional Honeycomb transmission.
func sendToSinks(options GlobalOptions, runID string, toBeSent <-chan envelope,
	stats *runStats, doneSending chan<- bool) {

	var store *timeline.Store
	if options.SQLitePath != "" {
		var err error
		store, err = timeline.Open(options.SQLitePath, runID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"err": err}).Fatal(
				"unable to open the timeline database")
		}
		defer store.Close()
	}

	useHoneycomb := options.Honeycomb.WriteKey != ""
	if useHoneycomb {
		libhConfig := libhoney.Config{
			WriteKey: options.Honeycomb.WriteKey,
			Dataset:  options.Honeycomb.Dataset,
			APIHost:  options.Honeycomb.APIHost,
			// block on send so we slow extraction down rather than drop
			// events when the API can't keep up
			BlockOnSend: true,
		}
		if err := libhoney.Init(libhConfig); err != nil {
			logrus.WithFields(logrus.Fields{"err": err}).Fatal(
				"Error occured while spinning up Transmission")
		}
		defer libhoney.Close()
	}

	encoder := json.NewEncoder(os.Stdout)
	for env := range toBeSent {
		if !options.Quiet {
			if err := encoder.Encode(env); err != nil {
				logrus.WithFields(logrus.Fields{"err": err}).Error(
					"unable to encode event to stdout")
			}
		}
		if store != nil {
			if err := store.Insert(env.Event, env.Parser, env.Plugin, env.Artifact); err != nil {
				logrus.WithFields(logrus.Fields{"err": err}).Error(
					"unable to insert event into the timeline database")
			}
		}
		if useHoneycomb {
			sendToHoneycomb(env)
		}
	}
	doneSending <- true
}

// sendToHoneycomb does the actual handoff of one event to libhoney.
func sendToHoneycomb(env envelope) {
	libhEv := libhoney.NewEvent()
	libhEv.Timestamp = env.Timestamp
	data := map[string]interface{}{
		"timestamp_desc": env.Description,
		"parser":         env.Parser,
		"plugin":         env.Plugin,
		"artifact":       env.Artifact,
		"run_id":         env.RunID,
	}
	if env.Data != nil {
		data["data_type"] = env.Data.Type
		for k, v := range env.Data.Fields {
			data[k] = v
		}
	}
	if err := libhEv.Add(data); err != nil {
		logrus.WithFields(logrus.Fields{"event": env, "error": err}).Error(
			"Unexpected error adding data to libhoney event")
	}
	if err := libhEv.Send(); err != nil {
		logrus.WithFields(logrus.Fields{"event": env, "error": err}).Error(
			"Unexpected error sending event to libhoney")
	}
}
