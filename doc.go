// Package cd11streams receives CD-1.1 station data and turns the
// state-of-health bits carried in data frames into environmental issue
// records.
//
// # Architecture
//
//	stations ──TCP/TLS──▶ station.Server ──▶ dispatch.Dispatcher
//	                                             │ data frames
//	                                             ▼
//	                              cd11.rsdf.raw (JetStream, CBOR)
//	                                             │
//	                                             ▼
//	                 rsdf.NATSSource ──▶ rsdf.Pipeline ──▶ cd11.soh.extract
//	                                                   └──▶ cd11.soh.issue
//
// # Packages
//
//   - cd11: frame codec, frame reader, channel status bits, CD-1.1 time format
//   - dispatch: routes decoded frames to handlers by frame type
//   - station: per-station connection, acknack tracking, TCP server
//   - rsdf: raw station data frame records, status parser, ingest pipeline
//   - soh: environmental issue types and the merge rules for them
//   - config: YAML configuration, merge tolerances, file watcher
//   - natsclient: NATS and JetStream client with circuit breaking
//   - metric, health: Prometheus registry and health aggregation
//   - errors, pkg/retry: classified errors and retry policies
//
// The cd11d command in cmd/cd11d runs the receiver and the extractor in one
// process and can decode captured frame streams offline.
//
// # Testing
//
// Unit tests need nothing external. Tests tagged integration start a NATS
// server with testcontainers:
//
//	go test -tags integration ./...
package cd11streams
