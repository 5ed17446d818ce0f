// Package events connects the ingestion engine to Kafka.
//
// # Components
//
//   - Publisher: emits a corpus.updated event after every persisted state change
//   - TriggerListener: consumes manual run requests and starts cycles or backfills
//
// # Event Types
//
//   - corpus.updated: the corpus, watermark or last fetch time changed
//
// Every event is a JSON Envelope. The event type and source service are also
// carried as message headers so consumers can route without decoding the body.
//
// # Trigger Messages
//
// The trigger topic accepts JSON messages of the form:
//
//	{"action": "ingest", "requested_by": "ops"}
//	{"action": "backfill", "requested_by": "ops"}
//
// A request that arrives while a cycle is running is dropped; the running
// cycle already covers it.
package events
