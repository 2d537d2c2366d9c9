package storage

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	KindMessage = "message"
	KindPacket  = "packet"

	// DefaultMaxEntries is how many entries a connection keeps when no limit
	// is given.
	DefaultMaxEntries = 1024
)

// InmemoryJournal keeps the most recent entries of every connection, each one
// already rendered as JSON. Get and Backup assemble them into documents like:
//
//	{"conns":{"conn-1":[{"kind":"message","text":"hi"},{"fields":["a","bb"],"kind":"packet"}]}}
//
// Fields that are not valid UTF-8 have the invalid bytes replaced, the journal
// is for people to read and is not a faithful copy of the wire.
type InmemoryJournal struct {
	mu         sync.RWMutex
	conns      map[string]*connEntries
	order      []string
	maxEntries int

	// stop willl be closed when Close() is called
	stop chan struct{}
}

// connEntries is a ring of at most max rendered entries, oldest first from
// start.
type connEntries struct {
	entries [][]byte
	start   int
}

// NewInmemoryJournal keeps at most maxEntries per connection, older entries
// are dropped first. maxEntries < 1 means DefaultMaxEntries.
func NewInmemoryJournal(maxEntries int) *InmemoryJournal {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}

	return &InmemoryJournal{
		conns:      make(map[string]*connEntries),
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
}

func (i *InmemoryJournal) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.isRunning() {
		close(i.stop)
	}

	return nil
}

func (i *InmemoryJournal) HandleMessage(ctx context.Context, connID string, text string) error {
	entry, err := renderEntry("kind", KindMessage, "text", text)
	if err != nil {
		return err
	}

	return i.append(connID, entry)
}

func (i *InmemoryJournal) HandlePacket(ctx context.Context, connID string, fields [][]byte) error {
	values := make([]string, len(fields))
	for n, f := range fields {
		values[n] = string(f)
	}

	entry, err := renderEntry("fields", values, "kind", KindPacket)
	if err != nil {
		return err
	}

	return i.append(connID, entry)
}

// append only touches the connection's own ring, rendering happens before the
// lock is taken.
func (i *InmemoryJournal) append(connID string, entry []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.isRunning() {
		return ErrClosed
	}

	i.entriesFor(connID).push(entry, i.maxEntries)
	return nil
}

func (i *InmemoryJournal) entriesFor(connID string) *connEntries {
	c, ok := i.conns[connID]
	if !ok {
		c = &connEntries{}
		i.conns[connID] = c
		i.order = append(i.order, connID)
	}

	return c
}

func (i *InmemoryJournal) Get(ctx context.Context, connID string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	c, ok := i.conns[connID]
	if !ok {
		return nil, ErrUnknownConn
	}

	return c.render(), nil
}

func (i *InmemoryJournal) Conns() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return append(make([]string, 0, len(i.order)), i.order...)
}

// Restore replaces the journal with a document produced by Backup. Entries
// beyond the limit are dropped, oldest first.
func (i *InmemoryJournal) Restore(values []byte) error {
	if len(values) > 0 && !gjson.ValidBytes(values) {
		return ErrInvalidBackup
	}

	conns := make(map[string]*connEntries)
	order := make([]string, 0)

	i.mu.Lock()
	defer i.mu.Unlock()

	gjson.GetBytes(values, "conns").ForEach(func(key, value gjson.Result) bool {
		connID := key.String()
		c, ok := conns[connID]
		if !ok {
			c = &connEntries{}
			conns[connID] = c
			order = append(order, connID)
		}

		value.ForEach(func(_, entry gjson.Result) bool {
			c.push([]byte(entry.Raw), i.maxEntries)
			return true
		})

		return true
	})

	i.conns = conns
	i.order = order
	return nil
}

func (i *InmemoryJournal) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.order) == 0 {
		return []byte("{}"), nil
	}

	backup := []byte(`{"conns":{}}`)
	for _, connID := range i.order {
		var err error

		backup, err = sjson.SetRawBytes(backup, connPath(connID), i.conns[connID].render())
		if err != nil {
			return nil, err
		}
	}

	return backup, nil
}

func (i *InmemoryJournal) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.conns = make(map[string]*connEntries)
	i.order = nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryJournal) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

// renderEntry builds a JSON object from key, value pairs, keys keep their
// order.
func renderEntry(pairs ...interface{}) (entry []byte, err error) {
	entry = []byte(`{}`)

	for n := 0; n+1 < len(pairs); n += 2 {
		entry, err = sjson.SetBytes(entry, pairs[n].(string), pairs[n+1])
		if err != nil {
			return nil, err
		}
	}

	return entry, nil
}

func (c *connEntries) push(entry []byte, max int) {
	if len(c.entries) < max {
		c.entries = append(c.entries, entry)
		return
	}

	c.entries[c.start] = entry
	c.start = (c.start + 1) % len(c.entries)
}

func (c *connEntries) render() []byte {
	var buf bytes.Buffer

	buf.WriteByte('[')
	for n := range c.entries {
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(c.entries[(c.start+n)%len(c.entries)])
	}
	buf.WriteByte(']')

	return buf.Bytes()
}

// Every character gjson/sjson give a meaning to in a path is escaped, connection
// ids can come from an HTTP request.
var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`#`, `\#`,
	`|`, `\|`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
	`<`, `\<`,
	`>`, `\>`,
	`%`, `\%`,
	`(`, `\(`,
	`)`, `\)`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
	`,`, `\,`,
	`:`, `\:`,
)

func connPath(connID string) string {
	return "conns." + pathEscaper.Replace(connID)
}

var _ Journal = (*InmemoryJournal)(nil)
