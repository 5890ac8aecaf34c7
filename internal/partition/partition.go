// Package partition encodes and decodes Hive-style partition fragments.
//
// A fragment is the directory suffix under a table's base location that
// identifies one partition, for example "year=2024/month=01". Values are not
// escaped: a value containing "=" or "/" produces an ambiguous fragment.
package partition

import (
	"slices"
	"strings"
)

const (
	segmentSep = "/"
	keyValSep  = "="

	// fragmentSep precedes every value of a fragment, so the empty tuple
	// and the tuple of one empty value differ.
	fragmentSep = "\x00"
)

// NUL and the escape byte inside values are escaped so any string value
// round-trips, including values read from a metadata store.
var (
	valueEscaper   = strings.NewReplacer("\x01", "\x01\x01", "\x00", "\x01\x02")
	valueUnescaper = strings.NewReplacer("\x01\x01", "\x01", "\x01\x02", "\x00")
)

// Encode joins key/value pairs as "k1=v1/k2=v2".
// Extra values beyond len(keys) are ignored, and so are extra keys.
func Encode(keys, values []string) string {
	n := min(len(keys), len(values))
	parts := make([]string, n)
	for i := range n {
		parts[i] = keys[i] + keyValSep + values[i]
	}
	return strings.Join(parts, segmentSep)
}

// Decode parses a fragment against the expected ordered key names and
// returns the values positionally. It reports false if the segment count
// differs from len(keys), a segment has no "=", or a key name is out of
// place. Keys in the wrong order are rejected, not reordered.
func Decode(fragment string, keys []string) ([]string, bool) {
	if fragment == "" {
		return nil, false
	}
	return DecodeSegments(strings.Split(fragment, segmentSep), keys)
}

// DecodeSegments is Decode for a fragment that is already split on "/".
func DecodeSegments(segments []string, keys []string) ([]string, bool) {
	if len(keys) == 0 || len(segments) != len(keys) {
		return nil, false
	}
	values := make([]string, len(keys))
	for i, seg := range segments {
		name, val, ok := strings.Cut(seg, keyValSep)
		if !ok || name != keys[i] {
			return nil, false
		}
		values[i] = val
	}
	return values, true
}

// -----------------------------------------------------------------------------
// Fragment
// -----------------------------------------------------------------------------

// Fragment is a hashable partition value tuple. Two fragments are equal iff
// their values are equal position by position.
type Fragment string

// NewFragment builds a fragment from a value tuple of any length.
func NewFragment(values []string) Fragment {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(fragmentSep)
		b.WriteString(valueEscaper.Replace(v))
	}
	return Fragment(b.String())
}

// Values returns the value tuple.
func (f Fragment) Values() []string {
	if f == "" {
		return []string{}
	}
	values := strings.Split(string(f)[len(fragmentSep):], fragmentSep)
	for i, v := range values {
		values[i] = valueUnescaper.Replace(v)
	}
	return values
}

// Len returns the number of values in the tuple.
func (f Fragment) Len() int {
	return strings.Count(string(f), fragmentSep)
}

// Path renders the fragment as a Hive directory suffix for the given keys.
func (f Fragment) Path(keys []string) string {
	return Encode(keys, f.Values())
}

// FragmentSet is a set of fragments.
type FragmentSet map[Fragment]struct{}

// NewFragmentSet returns a set holding the given fragments.
func NewFragmentSet(frags ...Fragment) FragmentSet {
	s := make(FragmentSet, len(frags))
	for _, f := range frags {
		s[f] = struct{}{}
	}
	return s
}

// Add inserts f. Adding an existing fragment is a no-op.
func (s FragmentSet) Add(f Fragment) {
	s[f] = struct{}{}
}

// Has reports whether f is in the set.
func (s FragmentSet) Has(f Fragment) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the members in lexical order of their encoded form.
func (s FragmentSet) Sorted() []Fragment {
	out := make([]Fragment, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
