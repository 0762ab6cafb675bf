package evalexpr

import (
	"strings"

	"github.com/ctrlpath/evalcore/internal/artifact"
)

// SegmentResolver lets a FUNC(IN_SEGMENT) node call back into segment
// evaluation without internal/evalexpr importing internal/segment, which in
// turn depends on this package to evaluate a segment's own expression.
type SegmentResolver interface {
	ResolveSegment(name string) (bool, error)
}

type state struct {
	subject  map[string]any
	context  map[string]any
	art      *artifact.Artifact
	clock    Clock
	segments SegmentResolver
}

// Eval evaluates expr against subject/context and returns its Value.
func Eval(expr *artifact.Expr, subject, context map[string]any, art *artifact.Artifact, clock Clock, segments SegmentResolver) (Value, error) {
	st := &state{subject: subject, context: context, art: art, clock: clock, segments: segments}
	return st.eval(expr)
}

func (s *state) eval(expr *artifact.Expr) (Value, error) {
	if expr == nil {
		return Null(), nil
	}

	switch expr.Kind {
	case artifact.ExprLiteral:
		return s.evalLiteral(expr.Literal)

	case artifact.ExprProperty:
		path, err := s.art.String(expr.PathIndex)
		if err != nil {
			return Null(), err
		}
		return evalProperty(path, s.subject, s.context), nil

	case artifact.ExprBinaryOp:
		return s.evalBinaryOp(expr)

	case artifact.ExprLogicalOp:
		return s.evalLogicalOp(expr)

	case artifact.ExprFunc:
		return s.evalFunc(expr)

	default:
		return Null(), nil
	}
}

func (s *state) evalLiteral(lit artifact.Literal) (Value, error) {
	switch lit.Kind {
	case artifact.LitNull:
		return Null(), nil
	case artifact.LitBool:
		return BoolValue(lit.Bool), nil
	case artifact.LitNumber:
		return NumberValue(lit.Number), nil
	case artifact.LitString:
		return StringValue(lit.Str), nil
	case artifact.LitStringRef:
		str, err := s.art.String(lit.StrRef)
		if err != nil {
			return Null(), err
		}
		return StringValue(str), nil
	default:
		return Null(), nil
	}
}

// evalProperty implements property access: a prototype-safety gate, then
// user./context. prefix routing, falling back to a subject-then-context
// lookup of the whole path for unprefixed paths.
func evalProperty(path string, subject, context map[string]any) Value {
	if path == "" {
		return Null()
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "__proto__" || seg == "constructor" || seg == "prototype" {
			return Null()
		}
	}

	switch segments[0] {
	case "user":
		v, ok := traverse(subject, segments[1:])
		if !ok {
			return Null()
		}
		return fromAny(v)
	case "context":
		v, ok := traverse(context, segments[1:])
		if !ok {
			return Null()
		}
		return fromAny(v)
	default:
		if v, ok := traverse(subject, segments); ok {
			return fromAny(v)
		}
		if v, ok := traverse(context, segments); ok {
			return fromAny(v)
		}
		return Null()
	}
}

// traverse walks segments into root, stopping with ok=false as soon as an
// intermediate value is null, undefined, or not an object.
func traverse(root map[string]any, segments []string) (any, bool) {
	var cur any = root
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = val
	}
	return cur, true
}

func (s *state) evalBinaryOp(expr *artifact.Expr) (Value, error) {
	left, err := s.eval(expr.Left)
	if err != nil {
		return Null(), err
	}
	right, err := s.eval(expr.Right)
	if err != nil {
		return Null(), err
	}

	switch expr.BinaryOp {
	case artifact.OpEQ:
		return BoolValue(valuesEqual(left, right)), nil
	case artifact.OpNE:
		return BoolValue(!valuesEqual(left, right)), nil
	case artifact.OpGT, artifact.OpLT, artifact.OpGTE, artifact.OpLTE:
		ln, lok := asNumber(left)
		rn, rok := asNumber(right)
		if !lok || !rok {
			return BoolValue(false), nil
		}
		switch expr.BinaryOp {
		case artifact.OpGT:
			return BoolValue(ln > rn), nil
		case artifact.OpLT:
			return BoolValue(ln < rn), nil
		case artifact.OpGTE:
			return BoolValue(ln >= rn), nil
		case artifact.OpLTE:
			return BoolValue(ln <= rn), nil
		}
	}
	return BoolValue(false), nil
}

func (s *state) evalLogicalOp(expr *artifact.Expr) (Value, error) {
	switch expr.LogicalOp {
	case artifact.OpAND:
		left, err := s.eval(expr.Left)
		if err != nil {
			return Null(), err
		}
		if !left.Truthy() {
			return BoolValue(false), nil
		}
		right, err := s.eval(expr.Right)
		if err != nil {
			return Null(), err
		}
		return BoolValue(right.Truthy()), nil

	case artifact.OpOR:
		left, err := s.eval(expr.Left)
		if err != nil {
			return Null(), err
		}
		if left.Truthy() {
			return BoolValue(true), nil
		}
		right, err := s.eval(expr.Right)
		if err != nil {
			return Null(), err
		}
		return BoolValue(right.Truthy()), nil

	case artifact.OpNOT:
		left, err := s.eval(expr.Left)
		if err != nil {
			return Null(), err
		}
		return BoolValue(!left.Truthy()), nil

	default:
		return BoolValue(false), nil
	}
}
