package trew

import (
	"fmt"
	"strings"
)

// tagOptions represents parsed options from an inject tag.
type tagOptions struct {
	skip     bool   // Don't inject this member
	optional bool   // Absence is not an error
	assisted bool   // Supplied by a factory caller
	name     string // Named qualifier
	marker   string // Registered marker qualifier
	property string // Property path
	scope    string // Scope of a provider method result
}

// parseInjectTag parses an inject struct tag or a method/parameter tag.
// Supported options, comma separated:
//   - `-`                  skip the member
//   - `optional`, `nullable` (any case)
//   - `assist`, `assisted`
//   - `name=foo`
//   - `marker=primary`     a marker registered with WithQualifierMarker
//   - `property=db.host`
//   - `singleton`, `scope=request`   provider method results only
func parseInjectTag(tag string) (tagOptions, error) {
	opts := tagOptions{}

	tag = strings.TrimSpace(tag)
	if tag == "" {
		return opts, nil
	}

	if tag == "-" {
		opts.skip = true
		return opts, nil
	}

	qualifiers := 0
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		name, value, hasValue := strings.Cut(part, "=")

		switch lower := strings.ToLower(name); {
		case part == "":
		case !hasValue && (lower == "optional" || lower == "nullable"):
			opts.optional = true
		case !hasValue && (lower == "assist" || lower == "assisted"):
			opts.assisted = true
		case !hasValue && lower == "singleton":
			opts.scope = "singleton"
		case hasValue && name == "name":
			opts.name = value
			qualifiers++
		case hasValue && name == "marker":
			opts.marker = value
			qualifiers++
		case hasValue && name == "property":
			opts.property = value
			qualifiers++
		case hasValue && name == "scope":
			opts.scope = value
		default:
			return opts, fmt.Errorf("unknown inject tag option %q in %q", part, tag)
		}
	}

	if qualifiers > 1 {
		return opts, fmt.Errorf("inject tag %q declares more than one qualifier", tag)
	}
	return opts, nil
}
