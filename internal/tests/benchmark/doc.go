// Package benchmark provides performance benchmarks for the docguard write
// and recovery paths.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run a single backend:
//
//	go test -bench='BenchmarkPersist/sqlite' -benchmem -benchtime=5s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
