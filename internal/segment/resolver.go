// Package segment evaluates named segment predicates, detecting and
// short-circuiting cycles introduced by IN_SEGMENT calls that reference
// segments still being resolved.
package segment

import (
	"github.com/ctrlpath/evalcore/internal/artifact"
	"github.com/ctrlpath/evalcore/internal/evalexpr"
)

// Resolver implements evalexpr.SegmentResolver over one artifact's segment
// table for a single subject/context pair. A Resolver is built fresh for
// each top-level evaluation so its in-progress set never leaks across
// evaluations.
type Resolver struct {
	art      *artifact.Artifact
	subject  map[string]any
	context  map[string]any
	clock    evalexpr.Clock
	inFlight map[string]bool
}

// New builds a Resolver for one evaluation.
func New(art *artifact.Artifact, subject, context map[string]any, clock evalexpr.Clock) *Resolver {
	return &Resolver{
		art:      art,
		subject:  subject,
		context:  context,
		clock:    clock,
		inFlight: make(map[string]bool),
	}
}

// ResolveSegment resolves name to a segment by literal string-table value
// and evaluates its expression, returning false (never an error) when the
// segment is unknown or a cycle is detected.
func (r *Resolver) ResolveSegment(name string) (bool, error) {
	if r.inFlight[name] {
		return false, nil
	}

	seg, ok := r.art.SegmentByName(name)
	if !ok {
		return false, nil
	}

	r.inFlight[name] = true
	defer delete(r.inFlight, name)

	v, err := evalexpr.Eval(seg.Expr, r.subject, r.context, r.art, r.clock, r)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}
