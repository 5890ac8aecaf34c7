package lakecat

import (
	"fmt"
	"strings"
)

var objectSchemes = map[string]bool{"s3": true, "s3a": true, "s3n": true}

// Location is a parsed object store URI such as "s3://bucket/db/table".
type Location struct {
	Scheme string
	Bucket string
	// Prefix is the key prefix without leading or trailing slashes.
	Prefix string
}

// ParseLocation parses an s3, s3a or s3n URI. The key part is taken
// verbatim: S3 keys are not URL paths, so "#", "?" and "%" are ordinary
// characters and nothing is percent-decoded.
func ParseLocation(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || !objectSchemes[strings.ToLower(scheme)] {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("%w: %q: missing bucket", ErrInvalidLocation, raw)
	}
	return Location{
		Scheme: strings.ToLower(scheme),
		Bucket: bucket,
		Prefix: strings.Trim(key, "/"),
	}, nil
}

// String renders the location as a URI without a trailing slash.
func (l Location) String() string {
	if l.Prefix == "" {
		return l.Scheme + "://" + l.Bucket
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Prefix
}

// Dir returns the listing prefix for objects strictly under the location.
// The trailing slash keeps "db/events" from matching "db/events_v2/...".
func (l Location) Dir() string {
	if l.Prefix == "" {
		return ""
	}
	return l.Prefix + "/"
}

// Join appends a relative path to the location.
func (l Location) Join(rel string) Location {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return l
	}
	out := l
	if l.Prefix == "" {
		out.Prefix = rel
	} else {
		out.Prefix = l.Prefix + "/" + rel
	}
	return out
}

// Contains reports whether other lies strictly under l.
func (l Location) Contains(other Location) bool {
	if l.Bucket != other.Bucket || other.Prefix == l.Prefix {
		return false
	}
	return l.Prefix == "" || strings.HasPrefix(other.Prefix, l.Prefix+"/")
}

// trimLocation normalises a location string for comparison.
func trimLocation(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
