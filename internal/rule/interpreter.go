// Package rule traverses a flag's ordered rule list and dispatches on rule
// kind.
package rule

import (
	"github.com/ctrlpath/evalcore/internal/artifact"
	"github.com/ctrlpath/evalcore/internal/evalexpr"
)

// Result is the outcome of evaluating one flag's rule list. Matched is
// false when no rule fired.
type Result struct {
	Matched bool
	Value   evalexpr.Value
}

// subjectID extracts subject.id for deterministic bucketing; an absent or
// non-string id buckets as the empty string, a fixed and reproducible
// bucket.
func subjectID(subject map[string]any) string {
	if subject == nil {
		return ""
	}
	id, _ := subject["id"].(string)
	return id
}

// Evaluate walks art.Flags[flagIndex] in order, returning the first rule's
// result, or Result{Matched: false} if flagIndex is out of range or no rule
// fires.
func Evaluate(flagIndex int, art *artifact.Artifact, subject, context map[string]any, clock evalexpr.Clock, segments evalexpr.SegmentResolver) (Result, error) {
	if flagIndex < 0 || flagIndex >= len(art.Flags) {
		return Result{}, nil
	}

	id := subjectID(subject)

	for _, r := range art.Flags[flagIndex] {
		if r.Guard != nil {
			guardVal, err := evalexpr.Eval(r.Guard, subject, context, art, clock, segments)
			if err != nil {
				return Result{}, err
			}
			if !guardVal.Truthy() {
				continue
			}
		}

		switch r.Kind {
		case artifact.RuleServe:
			v, err := evalexpr.Eval(r.Serve, subject, context, art, clock, segments)
			if err != nil {
				return Result{}, err
			}
			return Result{Matched: true, Value: v}, nil

		case artifact.RuleVariations:
			res, ok, err := evaluateVariations(r, id, subject, context, art, clock, segments)
			if err != nil {
				return Result{}, err
			}
			if ok {
				return res, nil
			}
			// An empty variations list matches nothing; fall through to the next rule.

		case artifact.RuleRollout:
			res, ok, err := evaluateRollout(r, id, subject, context, art, clock, segments)
			if err != nil {
				return Result{}, err
			}
			if ok {
				return res, nil
			}
		}
	}

	return Result{}, nil
}

func evaluateVariations(r artifact.Rule, id string, subject, context map[string]any, art *artifact.Artifact, clock evalexpr.Clock, segments evalexpr.SegmentResolver) (Result, bool, error) {
	if len(r.Variations) == 0 {
		return Result{}, false, nil
	}

	var total uint64
	for _, v := range r.Variations {
		total += uint64(v.Weight)
	}
	if total == 0 {
		v, err := evalexpr.Eval(r.Variations[0].Value, subject, context, art, clock, segments)
		if err != nil {
			return Result{}, false, err
		}
		return Result{Matched: true, Value: v}, true, nil
	}

	bucket := evalexpr.Bucket(id, total)

	// Walk entries accumulating weight; the artifact codec already validates
	// every string-table reference at load time, so the first entry whose
	// cumulative weight exceeds the bucket always dereferences successfully
	// here; an evaluation error is returned at once. Because bucket < total,
	// the loop always returns, so the lastValue fallback below is not reached.
	var cumulative uint64
	var lastValue *artifact.Expr
	for _, variation := range r.Variations {
		cumulative += uint64(variation.Weight)
		lastValue = variation.Value
		if cumulative > bucket {
			v, err := evalexpr.Eval(variation.Value, subject, context, art, clock, segments)
			if err != nil {
				return Result{}, false, err
			}
			return Result{Matched: true, Value: v}, true, nil
		}
	}

	if lastValue != nil {
		v, err := evalexpr.Eval(lastValue, subject, context, art, clock, segments)
		if err != nil {
			return Result{}, false, err
		}
		return Result{Matched: true, Value: v}, true, nil
	}

	return Result{}, false, nil
}

func evaluateRollout(r artifact.Rule, id string, subject, context map[string]any, art *artifact.Artifact, clock evalexpr.Clock, segments evalexpr.SegmentResolver) (Result, bool, error) {
	if r.RolloutPercent <= 0 {
		return Result{}, false, nil
	}
	if r.RolloutPercent >= 100 {
		v, err := evalexpr.Eval(r.RolloutValue, subject, context, art, clock, segments)
		if err != nil {
			return Result{}, false, err
		}
		return Result{Matched: true, Value: v}, true, nil
	}

	bucket := evalexpr.PercentBucket(id)
	if bucket >= r.RolloutPercent {
		return Result{}, false, nil
	}
	v, err := evalexpr.Eval(r.RolloutValue, subject, context, art, clock, segments)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Matched: true, Value: v}, true, nil
}
