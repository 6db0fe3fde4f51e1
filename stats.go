package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// runStats is a container for collecting statistics about one extraction
// run. It counts interesting aspects of the run and presents them for
// printing whenever it's called.
//
// the intent is to periodically print and flush the counters, eg once/minute

type runStats struct {
	lock *sync.Mutex

	files    int
	events   int
	warnings int
	byPlugin map[string]int

	totalFiles    int
	totalEvents   int
	totalWarnings int

	started time.Time
}

// newRunStats initializes the struct's complex data types
func newRunStats() *runStats {
	r := &runStats{}
	r.lock = &sync.Mutex{}
	r.started = time.Now()
	r.reset()
	return r
}

func (r *runStats) fileStarted() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.files++
	r.totalFiles++
}

func (r *runStats) eventProduced(parserName, pluginName string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events++
	r.totalEvents++
	r.byPlugin[parserName+"/"+pluginName]++
}

func (r *runStats) warningProduced() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.warnings++
	r.totalWarnings++
}

// log the current interval counters and reset them all to zero.
// thread safe.
func (r *runStats) logAndReset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.log()
	r.reset()
}

// log the current statistics to logrus.
// NOT thread safe.
func (r *runStats) log() {
	logrus.WithFields(logrus.Fields{
		"files":     r.files,
		"events":    r.events,
		"warnings":  r.warnings,
		"by_plugin": r.byPlugin,
	}).Info("Summary of extraction progress")
}

// logFinal prints a summary of the full run
func (r *runStats) logFinal() {
	r.lock.Lock()
	defer r.lock.Unlock()
	logrus.WithFields(logrus.Fields{
		"total_files":    r.totalFiles,
		"total_events":   r.totalEvents,
		"total_warnings": r.totalWarnings,
		"elapsed":        time.Since(r.started).Round(time.Millisecond),
	}).Info("Summary of the entire run")
}

// reset the interval counters to zero.
// NOT thread safe
func (r *runStats) reset() {
	r.files = 0
	r.events = 0
	r.warnings = 0
	r.byPlugin = make(map[string]int)
}

// logStats dumps and resets the stats once every interval
func logStats(stats *runStats, interval uint) {
	logrus.Debugf("Initializing stats reporting. Will print stats once/%d seconds", interval)
	if interval == 0 {
		// interval of 0 means don't print summary status
		return
	}
	ticker := time.NewTicker(time.Second * time.Duration(interval))
	for range ticker.C {
		stats.logAndReset()
	}
}
