// academic is the command-line interface for the student record store.
//
// Usage:
//
//	academic <command> [flags]
//
// Commands:
//
//	migrate     Create and inspect the event store schema
//	record      Read and change student records
//	projection  Inspect, query and rebuild read models
//	config      Create and inspect the configuration
//	version     Show version information
//
// Examples:
//
//	# Write a config using a local sqlite file
//	academic config init --driver sqlite --url records.db
//
//	# Record a grade and read the record back as of a date
//	academic record grade s-1 CS101 A --points 4 --semester 2024-FALL --by prof-1
//	academic record show s-1 --at 2024-12-31
//
//	# Rebuild every read model from the log
//	academic projection rebuild --all --force
package main

import (
	"os"

	"github.com/songifi/LMS-Backend-sub004/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
