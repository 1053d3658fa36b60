// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package diag

import "fmt"

// Diagnostic is one warning or error recorded during rule loading,
// resolution, or evaluation. It carries enough context to reconstruct why
// a comparison or fetch silently degraded, without ever aborting the
// caller.
type Diagnostic struct {
	Severity Severity
	Summary  string
	Detail   string
}

func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("[%s] %s", d.Severity, d.Summary)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Summary, d.Detail)
}

// Diagnostics is an ordered, append-only collection of Diagnostic values.
// It is deliberately a value type (a slice) rather than a pointer-receiver
// accumulator, matching tfdiags.Diagnostics: callers reassign the result of
// Append rather than mutating in place, which keeps it safe to fork across
// concurrent resolution branches that each accumulate their own partial
// list before being merged by the caller.
type Diagnostics []Diagnostic

// Append adds a diagnostic and returns the (possibly reallocated) slice.
func (d Diagnostics) Append(sev Severity, summary, detail string) Diagnostics {
	return append(d, Diagnostic{Severity: sev, Summary: summary, Detail: detail})
}

// Warnf appends a formatted warning.
func (d Diagnostics) Warnf(summary, format string, args ...any) Diagnostics {
	return d.Append(Warning, summary, fmt.Sprintf(format, args...))
}

// Extend appends every diagnostic from other, preserving order.
func (d Diagnostics) Extend(other Diagnostics) Diagnostics {
	return append(d, other...)
}

// HasErrors reports whether any diagnostic in the collection is an Error.
func (d Diagnostics) HasErrors() bool {
	for _, diagnostic := range d {
		if diagnostic.Severity == Error {
			return true
		}
	}
	return false
}

// Warnings returns only the Warning-severity diagnostics.
func (d Diagnostics) Warnings() Diagnostics {
	var out Diagnostics
	for _, diagnostic := range d {
		if diagnostic.Severity == Warning {
			out = append(out, diagnostic)
		}
	}
	return out
}
