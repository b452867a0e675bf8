// Package migrations provides SQL migration generation for the bundled
// SQL persistence adapters (commits table, snapshots table, indices).
//
// To generate migrations, use the eventstore-migrate command:
//
//	go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -adapter postgres -output migrations
//
// Or add a go generate directive to your code:
//
//	//go:generate go run github.com/parchment-es/eventstore/cmd/eventstore-migrate -output ../../migrations
//
// Then run:
//
//	go generate ./...
package migrations

//go:generate go run ../../cmd/eventstore-migrate -output example_migrations -filename example.sql
