// Package protocol implements the JSON wire codec for the WebDriver BiDi
// remote protocol.
//
// The protocol runs over a persistent WebSocket. The client sends commands
// and the remote end answers each one with exactly one response; the remote
// end also pushes unsolicited events at any time.
//
// # Wire Format
//
// Outgoing command:
//
//	{"id": 1, "method": "session.status", "params": {}}
//
// Incoming messages are classified by their "type" field:
//
//	{"type": "success", "id": 1, "result": {...}}
//	{"type": "error", "id": 1, "error": "unknown command", "message": "...", "stacktrace": "..."}
//	{"type": "event", "method": "log.entryAdded", "params": {...}}
//
// # Decoding
//
// Plain shapes are decoded with an ObjectReader, which enforces required
// fields (ErrMissingField), checks the JSON kind of each present field
// against its Go destination (ErrTypeMismatch), and collects any fields the
// type does not declare into an additional-data map.
//
// Polymorphic shapes pick a variant either from a string discriminator
// (ObjectReader.Discriminator) or from the presence of sibling fields in a
// fixed order (ObjectReader.OneOf). Unknown discriminator values fail with
// ErrUnknownVariant; they are never coerced to a default variant.
//
// # Receive-Only Types
//
// Only values implementing Command can be encoded as command parameters.
// Polymorphic results decoded from the remote end are receive-only: they do
// not implement Command, and their MarshalJSON returns ErrReceiveOnly.
//
// # File Structure
//
//   - envelope.go: Command, CommandEnvelope, Message and classification
//   - reader.go: ObjectReader and JSON kind checks
//   - decode.go: generic Decode and encoding/json error mapping
//   - error.go: DecodeError and sentinel errors
//   - nullable.go: Nullable for explicit-null parameters
package protocol
