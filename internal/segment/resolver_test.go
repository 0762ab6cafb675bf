package segment

import (
	"testing"

	"github.com/ctrlpath/evalcore/internal/artifact"
	"github.com/ctrlpath/evalcore/internal/evalexpr"
)

func TestResolveSegmentUnknownYieldsFalse(t *testing.T) {
	art := &artifact.Artifact{Strings: []string{}}
	r := New(art, map[string]any{}, map[string]any{}, evalexpr.SystemClock{})
	ok, err := r.ResolveSegment("missing")
	if err != nil {
		t.Fatalf("ResolveSegment: %v", err)
	}
	if ok {
		t.Fatalf("unknown segment resolved true")
	}
}

func TestResolveSegmentEvaluatesExpression(t *testing.T) {
	art := &artifact.Artifact{
		Strings: []string{"beta-users", "role", "beta"},
		Segments: []artifact.Segment{
			{
				NameIndex: 0,
				Expr: &artifact.Expr{
					Kind:     artifact.ExprBinaryOp,
					BinaryOp: artifact.OpEQ,
					Left:     &artifact.Expr{Kind: artifact.ExprProperty, PathIndex: 1},
					Right:    &artifact.Expr{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitStringRef, StrRef: 2}},
				},
			},
		},
	}

	r := New(art, map[string]any{"role": "beta"}, map[string]any{}, evalexpr.SystemClock{})
	ok, err := r.ResolveSegment("beta-users")
	if err != nil {
		t.Fatalf("ResolveSegment: %v", err)
	}
	if !ok {
		t.Fatalf("expected beta-users segment to match")
	}
}

func TestResolveSegmentCycleShortCircuits(t *testing.T) {
	art := &artifact.Artifact{
		Strings: []string{"self-referential"},
		Segments: []artifact.Segment{
			{
				NameIndex: 0,
				Expr: &artifact.Expr{
					Kind:     artifact.ExprFunc,
					FuncCode: artifact.FuncInSegment,
					Args: []*artifact.Expr{
						{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitBool, Bool: true}},
						{Kind: artifact.ExprLiteral, Literal: artifact.Literal{Kind: artifact.LitStringRef, StrRef: 0}},
					},
				},
			},
		},
	}

	r := New(art, map[string]any{}, map[string]any{}, evalexpr.SystemClock{})
	ok, err := r.ResolveSegment("self-referential")
	if err != nil {
		t.Fatalf("ResolveSegment: %v", err)
	}
	if ok {
		t.Fatalf("cyclic segment resolved true, want false")
	}
}
