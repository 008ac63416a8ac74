// Package game holds the live play state: the per-session Record/Name
// store and the page-navigation session itself.
package game

import (
	"errors"
	"fmt"

	"github.com/adventurebook/server/internal/adventure"
	"github.com/adventurebook/server/internal/eval"
)

// ErrUndefinedName indicates a name keyword that was never declared.
var ErrUndefinedName = errors.New("undefined name")

// Record is the live value of a declared record plus its display metadata.
type Record struct {
	Keyword  string `json:"keyword"`
	Category string `json:"category,omitempty"`
	Hidden   bool   `json:"hidden"`
	Value    int    `json:"value"`
}

// Name is the live value of a declared name.
type Name struct {
	Keyword string `json:"keyword"`
	Value   string `json:"value"`
}

// Store owns the mutable Record and Name values for one session. One store
// per playthrough; stores are never shared between sessions.
type Store struct {
	records     map[string]*Record
	recordOrder []string
	names       map[string]string
	nameOrder   []string
}

// NewStore seeds a store from an adventure's definitions.
func NewStore(adv *adventure.Adventure) *Store {
	s := &Store{
		records: make(map[string]*Record, len(adv.Records)),
		names:   make(map[string]string, len(adv.Names)),
	}
	for _, def := range adv.Records {
		s.records[def.Keyword] = &Record{
			Keyword:  def.Keyword,
			Category: def.Category,
			Hidden:   def.Hidden(),
			Value:    def.Value,
		}
		s.recordOrder = append(s.recordOrder, def.Keyword)
	}
	for _, def := range adv.Names {
		s.names[def.Keyword] = def.Value
		s.nameOrder = append(s.nameOrder, def.Keyword)
	}
	return s
}

// Record returns the current value of a record. The error wraps
// eval.ErrUndefinedRecord so the method doubles as an eval.Lookup.
func (s *Store) Record(keyword string) (int, error) {
	rec, ok := s.records[keyword]
	if !ok {
		return 0, fmt.Errorf("%w: %q", eval.ErrUndefinedRecord, keyword)
	}
	return rec.Value, nil
}

// ApplyDelta adds delta (positive or negative) to a record. Values are
// never clamped.
func (s *Store) ApplyDelta(keyword string, delta int) error {
	rec, ok := s.records[keyword]
	if !ok {
		return fmt.Errorf("%w: %q", eval.ErrUndefinedRecord, keyword)
	}
	rec.Value += delta
	return nil
}

// Name returns the current value of a name.
func (s *Store) Name(keyword string) (string, error) {
	v, ok := s.names[keyword]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUndefinedName, keyword)
	}
	return v, nil
}

// SetName replaces a name's value in full.
func (s *Store) SetName(keyword, value string) error {
	if _, ok := s.names[keyword]; !ok {
		return fmt.Errorf("%w: %q", ErrUndefinedName, keyword)
	}
	s.names[keyword] = value
	return nil
}

// Records returns copies of every record in declaration order, including
// hidden ones; whether to display a hidden record is the caller's call.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.recordOrder))
	for _, keyword := range s.recordOrder {
		out = append(out, *s.records[keyword])
	}
	return out
}

// Names returns copies of every name in declaration order.
func (s *Store) Names() []Name {
	out := make([]Name, 0, len(s.nameOrder))
	for _, keyword := range s.nameOrder {
		out = append(out, Name{Keyword: keyword, Value: s.names[keyword]})
	}
	return out
}

// Clone deep-copies the store. Sessions stage result mutations on a clone
// and swap it in only when the whole mutation list applied cleanly.
func (s *Store) Clone() *Store {
	c := &Store{
		records:     make(map[string]*Record, len(s.records)),
		recordOrder: s.recordOrder,
		names:       make(map[string]string, len(s.names)),
		nameOrder:   s.nameOrder,
	}
	for keyword, rec := range s.records {
		copied := *rec
		c.records[keyword] = &copied
	}
	for keyword, v := range s.names {
		c.names[keyword] = v
	}
	return c
}

// RecordValues exports the raw record values for persistence.
func (s *Store) RecordValues() map[string]int {
	out := make(map[string]int, len(s.records))
	for keyword, rec := range s.records {
		out[keyword] = rec.Value
	}
	return out
}

// NameValues exports the raw name values for persistence.
func (s *Store) NameValues() map[string]string {
	out := make(map[string]string, len(s.names))
	for keyword, v := range s.names {
		out[keyword] = v
	}
	return out
}

// SetValues overwrites record and name values from persisted maps.
// Unknown keywords are ignored; definitions always come from the adventure.
func (s *Store) SetValues(records map[string]int, names map[string]string) {
	for keyword, v := range records {
		if rec, ok := s.records[keyword]; ok {
			rec.Value = v
		}
	}
	for keyword, v := range names {
		if _, ok := s.names[keyword]; ok {
			s.names[keyword] = v
		}
	}
}
