package artifact

import "fmt"

// decodeRule interprets a rule tuple of shape [kind, guardOrNil, payload].
// The payload shape depends on kind: a single value expression for SERVE, a
// list of (value, weight) pairs for VARIATIONS, or a (value, percent) pair
// for ROLLOUT.
func decodeRule(tuple []any, numStrs int) (Rule, error) {
	if len(tuple) != 3 {
		return Rule{}, fmt.Errorf("rule tuple has %d elements, want 3", len(tuple))
	}

	kindVal, err := toInt(tuple[0])
	if err != nil {
		return Rule{}, fmt.Errorf("rule kind: %w", err)
	}

	var guard *Expr
	if tuple[1] != nil {
		guardTuple, ok := tuple[1].([]any)
		if !ok {
			return Rule{}, fmt.Errorf("rule guard is not a tuple")
		}
		guard, err = decodeExpr(guardTuple, numStrs)
		if err != nil {
			return Rule{}, fmt.Errorf("rule guard: %w", err)
		}
	}

	rule := Rule{Kind: RuleKind(kindVal), Guard: guard}

	switch rule.Kind {
	case RuleServe:
		valTuple, ok := tuple[2].([]any)
		if !ok {
			return Rule{}, fmt.Errorf("serve rule payload is not a tuple")
		}
		serve, err := decodeExpr(valTuple, numStrs)
		if err != nil {
			return Rule{}, fmt.Errorf("serve value: %w", err)
		}
		rule.Serve = serve

	case RuleVariations:
		pairs, ok := tuple[2].([]any)
		if !ok {
			return Rule{}, fmt.Errorf("variations payload is not a list")
		}
		variations := make([]Variation, 0, len(pairs))
		for i, p := range pairs {
			pair, ok := p.([]any)
			if !ok || len(pair) != 2 {
				return Rule{}, fmt.Errorf("variations[%d] is not a (value, weight) pair", i)
			}
			valTuple, ok := pair[0].([]any)
			if !ok {
				return Rule{}, fmt.Errorf("variations[%d] value is not a tuple", i)
			}
			value, err := decodeExpr(valTuple, numStrs)
			if err != nil {
				return Rule{}, fmt.Errorf("variations[%d] value: %w", i, err)
			}
			weight, err := toInt(pair[1])
			if err != nil {
				return Rule{}, fmt.Errorf("variations[%d] weight: %w", i, err)
			}
			variations = append(variations, Variation{Value: value, Weight: uint8(weight)})
		}
		rule.Variations = variations

	case RuleRollout:
		pair, ok := tuple[2].([]any)
		if !ok || len(pair) != 2 {
			return Rule{}, fmt.Errorf("rollout payload is not a (value, percent) pair")
		}
		valTuple, ok := pair[0].([]any)
		if !ok {
			return Rule{}, fmt.Errorf("rollout value is not a tuple")
		}
		value, err := decodeExpr(valTuple, numStrs)
		if err != nil {
			return Rule{}, fmt.Errorf("rollout value: %w", err)
		}
		percent, err := toInt(pair[1])
		if err != nil {
			return Rule{}, fmt.Errorf("rollout percent: %w", err)
		}
		rule.RolloutValue = value
		rule.RolloutPercent = percent

	default:
		return Rule{}, fmt.Errorf("unknown rule kind %d", kindVal)
	}

	return rule, nil
}

// decodeExpr interprets an expression tuple. The first element is always
// the ExprKind discriminant; the remaining elements depend on it.
func decodeExpr(tuple []any, numStrs int) (*Expr, error) {
	if len(tuple) == 0 {
		return nil, fmt.Errorf("expression tuple is empty")
	}
	kindVal, err := toInt(tuple[0])
	if err != nil {
		return nil, fmt.Errorf("expression kind: %w", err)
	}

	switch ExprKind(kindVal) {
	case ExprBinaryOp:
		if len(tuple) != 4 {
			return nil, fmt.Errorf("binary-op tuple has %d elements, want 4", len(tuple))
		}
		opVal, err := toInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("binary op code: %w", err)
		}
		leftTuple, ok := tuple[2].([]any)
		if !ok {
			return nil, fmt.Errorf("binary-op left operand is not a tuple")
		}
		left, err := decodeExpr(leftTuple, numStrs)
		if err != nil {
			return nil, fmt.Errorf("binary-op left: %w", err)
		}
		rightTuple, ok := tuple[3].([]any)
		if !ok {
			return nil, fmt.Errorf("binary-op right operand is not a tuple")
		}
		right, err := decodeExpr(rightTuple, numStrs)
		if err != nil {
			return nil, fmt.Errorf("binary-op right: %w", err)
		}
		return &Expr{Kind: ExprBinaryOp, BinaryOp: BinaryOpCode(opVal), Left: left, Right: right}, nil

	case ExprLogicalOp:
		if len(tuple) != 4 {
			return nil, fmt.Errorf("logical-op tuple has %d elements, want 4", len(tuple))
		}
		opVal, err := toInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("logical op code: %w", err)
		}
		leftTuple, ok := tuple[2].([]any)
		if !ok {
			return nil, fmt.Errorf("logical-op left operand is not a tuple")
		}
		left, err := decodeExpr(leftTuple, numStrs)
		if err != nil {
			return nil, fmt.Errorf("logical-op left: %w", err)
		}
		var right *Expr
		if tuple[3] != nil {
			rightTuple, ok := tuple[3].([]any)
			if !ok {
				return nil, fmt.Errorf("logical-op right operand is not a tuple")
			}
			right, err = decodeExpr(rightTuple, numStrs)
			if err != nil {
				return nil, fmt.Errorf("logical-op right: %w", err)
			}
		}
		return &Expr{Kind: ExprLogicalOp, LogicalOp: LogicalOpCode(opVal), Left: left, Right: right}, nil

	case ExprProperty:
		if len(tuple) != 2 {
			return nil, fmt.Errorf("property tuple has %d elements, want 2", len(tuple))
		}
		pathIdx, err := toInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("property path index: %w", err)
		}
		if pathIdx < 0 || pathIdx >= numStrs {
			return nil, fmt.Errorf("property path index %d out of range", pathIdx)
		}
		return &Expr{Kind: ExprProperty, PathIndex: pathIdx}, nil

	case ExprLiteral:
		if len(tuple) != 3 {
			return nil, fmt.Errorf("literal tuple has %d elements, want 3", len(tuple))
		}
		litKindVal, err := toInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("literal kind: %w", err)
		}
		lit := Literal{Kind: LiteralKind(litKindVal)}
		switch lit.Kind {
		case LitNull:
			// no payload
		case LitBool:
			b, ok := tuple[2].(bool)
			if !ok {
				return nil, fmt.Errorf("literal bool payload has wrong type %T", tuple[2])
			}
			lit.Bool = b
		case LitNumber:
			n, err := toFloat64(tuple[2])
			if err != nil {
				return nil, fmt.Errorf("literal number payload: %w", err)
			}
			lit.Number = n
		case LitString:
			s, ok := tuple[2].(string)
			if !ok {
				return nil, fmt.Errorf("literal string payload has wrong type %T", tuple[2])
			}
			lit.Str = s
		case LitStringRef:
			ref, err := toInt(tuple[2])
			if err != nil {
				return nil, fmt.Errorf("literal string-ref payload: %w", err)
			}
			if ref < 0 || ref >= numStrs {
				return nil, fmt.Errorf("literal string-ref %d out of range", ref)
			}
			lit.StrRef = ref
		default:
			return nil, fmt.Errorf("unknown literal kind %d", litKindVal)
		}
		return &Expr{Kind: ExprLiteral, Literal: lit}, nil

	case ExprFunc:
		if len(tuple) != 3 {
			return nil, fmt.Errorf("func tuple has %d elements, want 3", len(tuple))
		}
		funcVal, err := toInt(tuple[1])
		if err != nil {
			return nil, fmt.Errorf("func code: %w", err)
		}
		argTuples, ok := tuple[2].([]any)
		if !ok {
			return nil, fmt.Errorf("func args is not a list")
		}
		args := make([]*Expr, 0, len(argTuples))
		for i, at := range argTuples {
			argTuple, ok := at.([]any)
			if !ok {
				return nil, fmt.Errorf("func arg[%d] is not a tuple", i)
			}
			arg, err := decodeExpr(argTuple, numStrs)
			if err != nil {
				return nil, fmt.Errorf("func arg[%d]: %w", i, err)
			}
			args = append(args, arg)
		}
		return &Expr{Kind: ExprFunc, FuncCode: FuncCode(funcVal), Args: args}, nil

	default:
		return nil, fmt.Errorf("unknown expression kind %d", kindVal)
	}
}

func encodeRule(r Rule) []any {
	var guard any
	if r.Guard != nil {
		guard = encodeExpr(r.Guard)
	}

	var payload any
	switch r.Kind {
	case RuleServe:
		payload = encodeExpr(r.Serve)
	case RuleVariations:
		pairs := make([]any, len(r.Variations))
		for i, v := range r.Variations {
			pairs[i] = []any{encodeExpr(v.Value), v.Weight}
		}
		payload = pairs
	case RuleRollout:
		payload = []any{encodeExpr(r.RolloutValue), r.RolloutPercent}
	}

	return []any{r.Kind, guard, payload}
}

func encodeExpr(e *Expr) []any {
	switch e.Kind {
	case ExprBinaryOp:
		return []any{e.Kind, e.BinaryOp, encodeExpr(e.Left), encodeExpr(e.Right)}
	case ExprLogicalOp:
		var right any
		if e.Right != nil {
			right = encodeExpr(e.Right)
		}
		return []any{e.Kind, e.LogicalOp, encodeExpr(e.Left), right}
	case ExprProperty:
		return []any{e.Kind, e.PathIndex}
	case ExprLiteral:
		var payload any
		switch e.Literal.Kind {
		case LitNull:
			payload = nil
		case LitBool:
			payload = e.Literal.Bool
		case LitNumber:
			payload = e.Literal.Number
		case LitString:
			payload = e.Literal.Str
		case LitStringRef:
			payload = e.Literal.StrRef
		}
		return []any{e.Kind, e.Literal.Kind, payload}
	case ExprFunc:
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			args[i] = encodeExpr(a)
		}
		return []any{e.Kind, e.FuncCode, args}
	default:
		return nil
	}
}

// toInt coerces the numeric values msgpack decodes generic slices into
// (any signed or unsigned integer width, or float64) down to an int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("value %v has non-numeric type %T", v, v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v has non-numeric type %T", v, v)
	}
}
