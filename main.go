package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// BuildID is set by the release pipeline
var BuildID string

// GlobalOptions has all the top level CLI flags that trailhound supports
type GlobalOptions struct {
	ConfigFile string `short:"c" long:"config" description:"Config file for trailhound in INI format." no-ini:"true"`

	Parsers    []string `short:"p" long:"parser" description:"Restrict extraction to the named parser(s). See --list for what's available"`
	Timezone   string   `long:"timezone" description:"IANA time zone the evidence machine recorded local timestamps in" default:"UTC"`
	Encoding   string   `long:"encoding" description:"Default character encoding for text artifacts" default:"utf-8"`
	NumWorkers uint     `short:"P" long:"poolsize" description:"Number of artifacts to process concurrently" default:"4"`
	Debug      bool     `long:"debug" description:"Print debugging output"`
	Quiet      bool     `long:"quiet" description:"Do not write extracted events to STDOUT"`

	StatusInterval uint `long:"status_interval" description:"How frequently, in seconds, to print out summary info" default:"60"`

	SQLitePath string `long:"sqlite" description:"Append extracted events to a SQLite timeline database at this path"`

	Honeycomb HoneycombOptions `group:"Honeycomb Options" namespace:"honeycomb"`

	Reqs  RequiredOptions `group:"Required Options"`
	Modes OtherModes      `group:"Other Modes"`
}

type RequiredOptions struct {
	Artifacts []string `short:"f" long:"file" description:"Artifact file(s) to parse. Use this flag multiple times or use a glob (/evidence/*.plist)"`
}

// HoneycombOptions configures the optional event transmission sink.
type HoneycombOptions struct {
	WriteKey string `short:"k" long:"writekey" description:"Team write key. When set, extracted events are also transmitted to Honeycomb"`
	Dataset  string `short:"d" long:"dataset" description:"Name of the dataset"`
	APIHost  string `hidden:"true" long:"api_host" description:"Host for the Honeycomb API" default:"https://api.honeycomb.io/"`
}

type OtherModes struct {
	Help        bool `short:"h" long:"help" description:"Show this help message"`
	ListParsers bool `short:"l" long:"list" description:"List available parsers and plugins"`
	Version     bool `short:"V" long:"version" description:"Show version"`
}

func main() {
	var options GlobalOptions
	flagParser := flag.NewParser(&options, flag.PrintErrors)
	flagParser.Usage = "-f </path/to/artifact> [optional arguments]"

	if extraArgs, err := flagParser.Parse(); err != nil || len(extraArgs) != 0 {
		fmt.Println("Error: failed to parse the command line.")
		if err != nil {
			fmt.Printf("\t%s\n", err)
		} else {
			fmt.Printf("\tUnexpected extra arguments: %s\n", strings.Join(extraArgs, " "))
		}
		usage()
		os.Exit(1)
	}
	// read the config file if present
	if options.ConfigFile != "" {
		ini := flag.NewIniParser(flagParser)
		ini.ParseAsDefaults = true
		if err := ini.ParseFile(options.ConfigFile); err != nil {
			fmt.Printf("Error: failed to parse the config file %s\n", options.ConfigFile)
			fmt.Printf("\t%s\n", err)
			usage()
			os.Exit(1)
		}
	}

	if options.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	// events go to stdout; keep diagnostics on stderr
	logrus.SetOutput(os.Stderr)

	switch {
	case options.Modes.Version:
		fmt.Println("trailhound version", version())
		os.Exit(0)
	case options.Modes.Help:
		flagParser.WriteHelp(os.Stdout)
		os.Exit(0)
	case options.Modes.ListParsers:
		listParsers()
		os.Exit(0)
	}

	if len(options.Reqs.Artifacts) == 0 {
		fmt.Println("Error: at least one artifact file is required.")
		usage()
		os.Exit(1)
	}
	if options.Honeycomb.WriteKey != "" && options.Honeycomb.Dataset == "" {
		fmt.Println("Error: --honeycomb.dataset is required when --honeycomb.writekey is set.")
		usage()
		os.Exit(1)
	}

	run(options)
}

func version() string {
	if BuildID == "" {
		return "dev"
	}
	return BuildID
}

func listParsers() {
	registry := buildRegistry()
	for _, name := range registry.ParserNames() {
		fmt.Printf("%s:\n", name)
		for _, plugin := range registry.PluginNamesFor(name) {
			fmt.Printf("  %s\n", plugin)
		}
	}
}

func usage() {
	fmt.Print(`
Usage: trailhound -f </path/to/artifact> [optional arguments]

For even more detail on required and optional arguments, run
trailhound --help
`)
}
