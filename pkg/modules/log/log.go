// Package log implements the WebDriver BiDi log module.
package log

import (
	"encoding/json"

	"github.com/vango-dev/webdriverbidi/pkg/module"
	"github.com/vango-dev/webdriverbidi/pkg/modules/script"
	"github.com/vango-dev/webdriverbidi/pkg/observable"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// Name is the module name.
const Name = "log"

// EventEntryAdded is the only log event.
const EventEntryAdded = "log.entryAdded"

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EntryType is the tag of an Entry.
type EntryType string

const (
	TypeConsole    EntryType = "console"
	TypeJavascript EntryType = "javascript"
)

// Entry is a log entry: a ConsoleEntry or a JavascriptEntry.
type Entry interface {
	EntryType() EntryType
	Base() BaseEntry
}

// BaseEntry holds the fields common to every entry. Text is nil when the
// remote end sent null.
type BaseEntry struct {
	Level      Level
	Source     script.Source
	Text       *string
	Timestamp  uint64
	StackTrace *script.StackTrace

	AdditionalData map[string]json.RawMessage
}

// ConsoleEntry is produced by the console API.
type ConsoleEntry struct {
	BaseEntry
	Method string
	Args   []script.RemoteValue
}

// JavascriptEntry is produced by an uncaught error.
type JavascriptEntry struct {
	BaseEntry
}

func (ConsoleEntry) EntryType() EntryType    { return TypeConsole }
func (JavascriptEntry) EntryType() EntryType { return TypeJavascript }

func (e ConsoleEntry) Base() BaseEntry    { return e.BaseEntry }
func (e JavascriptEntry) Base() BaseEntry { return e.BaseEntry }

// MarshalJSON always fails: log entries are receive-only.
func (BaseEntry) MarshalJSON() ([]byte, error) { return nil, protocol.ErrReceiveOnly }

// DecodeEntry picks the entry variant from the "type" tag.
func DecodeEntry(data []byte) (Entry, error) {
	r, err := protocol.NewObjectReader("log.Entry", data)
	if err != nil {
		return nil, err
	}
	tag, err := r.Discriminator("type")
	if err != nil {
		return nil, err
	}

	switch EntryType(tag) {
	case TypeConsole:
		var e ConsoleEntry
		readBase(r, &e.BaseEntry)
		r.Required("method", &e.Method)
		r.Required("args", &e.Args)
		e.AdditionalData = r.Extra()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return e, nil
	case TypeJavascript:
		var e JavascriptEntry
		readBase(r, &e.BaseEntry)
		e.AdditionalData = r.Extra()
		if err := r.Err(); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, protocol.UnknownVariant("log.Entry", "type", tag, string(TypeConsole), string(TypeJavascript))
	}
}

func readBase(r *protocol.ObjectReader, b *BaseEntry) {
	protocol.RequiredEnum(r, "level", &b.Level, LevelDebug, LevelInfo, LevelWarn, LevelError)
	r.Required("source", &b.Source)
	r.Required("text", &b.Text)
	r.Required("timestamp", &b.Timestamp)
	r.Optional("stackTrace", &b.StackTrace)
}

// EntryAddedEventArgs is the payload of log.entryAdded.
type EntryAddedEventArgs struct {
	Entry Entry
}

// Module is the log module.
type Module struct {
	module.Base

	OnEntryAdded *observable.Event[EntryAddedEventArgs]
}

// New creates the log module and registers its event with host.
func New(host module.Host, opts ...observable.Option) (*Module, error) {
	m := &Module{Base: module.NewBase(Name, host)}
	var err error
	m.OnEntryAdded, err = module.RegisterWrappedEvent(host, EventEntryAdded, DecodeEntry,
		func(e Entry) EntryAddedEventArgs { return EntryAddedEventArgs{Entry: e} }, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}
