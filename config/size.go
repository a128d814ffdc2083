// SPDX-License-Identifier: Apache-2.0

package config

import (
	"github.com/cockroachdb/errors"
	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"
)

// Size is a byte count written either as a plain integer or with a unit
// suffix such as "64KB" or "1.5MB". Units are binary.
type Size int

// Bytes returns the size as an int.
func (s Size) Bytes() int { return int(s) }

func (s Size) String() string {
	return bytesize.New(float64(s)).String()
}

// UnmarshalYAML accepts integers and unit suffixed strings.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var n int
	if err := node.Decode(&n); err == nil {
		*s = Size(n)
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*s = v
	return nil
}

// MarshalYAML writes the size with a unit suffix, or as a plain integer when
// the suffixed form would lose precision.
func (s Size) MarshalYAML() (any, error) {
	text := s.String()
	if v, err := ParseSize(text); err == nil && v == s {
		return text, nil
	}
	return int(s), nil
}

// ParseSize parses a unit suffixed size.
func ParseSize(text string) (Size, error) {
	b, err := bytesize.Parse(text)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "size %q: %v", text, err)
	}
	return Size(b), nil
}
