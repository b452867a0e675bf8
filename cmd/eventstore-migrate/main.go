// Command eventstore-migrate generates SQL migration files for the
// commits and snapshots tables a bundled SQL adapter expects.
//
// Usage:
//
//	go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -output migrations
//
// Or with go generate:
//
//	//go:generate go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -adapter postgres -output migrations
//	go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -adapter mysql -output migrations
//	go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -adapter sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/parchment-es/eventstore/es/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		commitsTable   = flag.String("commits-table", "commits", "Name of commits table")
		snapshotsTable = flag.String("snapshots-table", "snapshots", "Name of snapshots table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.CommitsTable = *commitsTable
	config.SnapshotsTable = *snapshotsTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	var err error
	switch *adapter {
	case "postgres":
		err = migrations.GeneratePostgres(&config)
	case "mysql":
		err = migrations.GenerateMySQL(&config)
	case "sqlite":
		err = migrations.GenerateSQLite(&config)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown adapter %q (want postgres, mysql, or sqlite)\n", *adapter)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
