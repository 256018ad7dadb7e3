package domain

import (
	"encoding/json"
	"sort"
)

// ItemSet is a set of catalog item ids. It marshals to a sorted JSON array.
type ItemSet map[string]struct{}

func NewItemSet(ids ...string) ItemSet {
	s := make(ItemSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s ItemSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether it was not present before.
func (s ItemSet) Add(id string) bool {
	if s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s ItemSet) Len() int { return len(s) }

// Sorted returns the ids in lexical order.
func (s ItemSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s ItemSet) Clone() ItemSet {
	c := make(ItemSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func (s ItemSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON accepts an array and drops duplicates.
func (s *ItemSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewItemSet(ids...)
	return nil
}
