// Package experiment defines A/B experiment definitions and the carrier that
// hands them to an assignment resolver.
package experiment

import (
	"fmt"
	"sort"
)

// DefaultPrefix is prepended to every variant ID when no prefix is configured.
const DefaultPrefix = "ab-test-"

// DefaultDistribution is the probability of assigning variant A when a spec
// leaves its distribution unset.
const DefaultDistribution = 0.5

// Variant labels.
const (
	LabelA = "A"
	LabelB = "B"
)

// Spec describes a single two-variant experiment.
type Spec struct {
	// Distribution is the probability of variant A. Zero means DefaultDistribution.
	Distribution float64 `json:"distribution,omitempty" yaml:"distribution,omitempty"`

	// A is the display text of variant A.
	A string `json:"a" yaml:"a"`

	// B is the display text of variant B.
	B string `json:"b" yaml:"b"`
}

// Collection maps experiment names to their specs.
type Collection map[string]Spec

// Names returns the experiment names in sorted order.
func (c Collection) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variant is a resolved variant of one experiment. It is also the persisted
// record, encoded as {"id": ..., "text": ...}.
type Variant struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Placeholder returns the neutral variant handed out before storage is ready.
func Placeholder() *Variant {
	return &Variant{Text: "", ID: ""}
}

// IsPlaceholder reports whether v is the neutral pre-ready variant.
func (v *Variant) IsPlaceholder() bool {
	return v != nil && v.ID == "" && v.Text == ""
}

// Resolved is a Spec with both variants formatted for a given name and prefix.
type Resolved struct {
	Name         string
	Distribution float64
	A            Variant
	B            Variant
}

// VariantID formats the ID of one variant: <prefix><name>-<label>.
func VariantID(prefix, name, label string) string {
	return fmt.Sprintf("%s%s-%s", prefix, name, label)
}

// Resolve formats both variants of s for name under prefix.
func (s Spec) Resolve(name, prefix string) Resolved {
	dist := s.Distribution
	if dist == 0 {
		dist = DefaultDistribution
	}
	return Resolved{
		Name:         name,
		Distribution: dist,
		A:            Variant{ID: VariantID(prefix, name, LabelA), Text: s.A},
		B:            Variant{ID: VariantID(prefix, name, LabelB), Text: s.B},
	}
}

// Choose picks variant A when sample falls below the distribution, B otherwise.
// sample is expected in [0, 1).
func (r Resolved) Choose(sample float64) Variant {
	if sample < r.Distribution {
		return r.A
	}
	return r.B
}

// Lint returns advisory problems with s. The resolver never calls it; a spec
// with problems still resolves.
func (s Spec) Lint() []string {
	var problems []string
	if s.A == "" {
		problems = append(problems, "variant A has no text")
	}
	if s.B == "" {
		problems = append(problems, "variant B has no text")
	}
	if s.Distribution < 0 || s.Distribution > 1 {
		problems = append(problems, fmt.Sprintf("distribution must be in (0, 1], got %g", s.Distribution))
	}
	return problems
}
