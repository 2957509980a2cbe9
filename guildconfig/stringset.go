package guildconfig

import (
	"sort"

	"github.com/infinitybotlist/eureka/jsonimpl"
)

// StringSet is a hash set that persists as a sorted JSON array, so lookups
// are constant time and a load/save round trip is byte stable.
type StringSet map[string]struct{}

func NewStringSet(vals ...string) StringSet {
	s := make(StringSet, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

func (s StringSet) Remove(v string) {
	delete(s, v)
}

func (s StringSet) Values() []string {
	vals := make([]string, 0, len(s))
	for v := range s {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return jsonimpl.Marshal(s.Values())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var vals []string

	err := jsonimpl.Unmarshal(data, &vals)

	if err != nil {
		return err
	}

	*s = NewStringSet(vals...)
	return nil
}
