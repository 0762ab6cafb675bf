// Package artifact decodes, validates, and optionally verifies the signed
// binary artifact that describes a flag set.
package artifact

import "fmt"

// RuleKind discriminates the three rule shapes a flag's rule list can hold.
type RuleKind uint8

const (
	RuleServe RuleKind = iota
	RuleVariations
	RuleRollout
)

// Rule is one ordered decision step in a flag's rule list.
type Rule struct {
	Kind  RuleKind
	Guard *Expr // optional guard expression; nil means "always matches"

	// RuleServe
	Serve *Expr // literal value expression (string-table ref or numeric literal)

	// RuleVariations
	Variations []Variation

	// RuleRollout
	RolloutValue   *Expr
	RolloutPercent int
}

// Variation is one weighted entry of a VARIATIONS rule.
type Variation struct {
	Value  *Expr
	Weight uint8
}

// ExprKind discriminates the expression tree node shapes.
type ExprKind uint8

const (
	ExprBinaryOp ExprKind = iota
	ExprLogicalOp
	ExprProperty
	ExprLiteral
	ExprFunc
)

// BinaryOpCode enumerates the comparison operators.
type BinaryOpCode uint8

const (
	OpEQ BinaryOpCode = iota
	OpNE
	OpGT
	OpLT
	OpGTE
	OpLTE
)

// LogicalOpCode enumerates the boolean connectives.
type LogicalOpCode uint8

const (
	OpAND LogicalOpCode = iota
	OpOR
	OpNOT
)

// FuncCode enumerates the built-in function catalog.
type FuncCode uint8

const (
	FuncStartsWith       FuncCode = 0
	FuncEndsWith         FuncCode = 1
	FuncContains         FuncCode = 2
	FuncIn               FuncCode = 3
	FuncMatches          FuncCode = 4
	FuncUpper            FuncCode = 5
	FuncLower            FuncCode = 6
	FuncLength           FuncCode = 7
	FuncIntersects       FuncCode = 8
	FuncSemverEq         FuncCode = 9
	FuncSemverGt         FuncCode = 10
	FuncSemverGte        FuncCode = 11
	FuncSemverLt         FuncCode = 12
	FuncSemverLte        FuncCode = 13
	FuncHash             FuncCode = 14
	FuncCoalesce         FuncCode = 15
	FuncIsBetween        FuncCode = 16
	FuncIsAfter          FuncCode = 17
	FuncIsBefore         FuncCode = 18
	FuncDayOfWeek        FuncCode = 19
	FuncHourOfDay        FuncCode = 20
	FuncDayOfMonth       FuncCode = 21
	FuncMonth            FuncCode = 22
	FuncCurrentTimestamp FuncCode = 23
	FuncInSegment        FuncCode = 24
)

// LiteralKind discriminates the shapes a LITERAL value can take.
type LiteralKind uint8

const (
	LitNull LiteralKind = iota
	LitBool
	LitNumber
	LitString    // inline string value, not dereferenced through the string table
	LitStringRef // string-table index, dereferenced lazily by string-typed consumers
)

// Literal is the payload of an ExprLiteral node.
type Literal struct {
	Kind   LiteralKind
	Bool   bool
	Number float64
	Str    string
	StrRef int
}

// Expr is a tagged expression tree node. Exactly one of the per-kind fields
// below is meaningful for a given Kind; this is a closed-enum-plus-switch
// dispatch shape rather than open polymorphism.
type Expr struct {
	Kind ExprKind

	// ExprBinaryOp / ExprLogicalOp
	BinaryOp  BinaryOpCode
	LogicalOp LogicalOpCode
	Left      *Expr
	Right     *Expr // nil for LogicalOp NOT

	// ExprProperty
	PathIndex int

	// ExprLiteral
	Literal Literal

	// ExprFunc
	FuncCode FuncCode
	Args     []*Expr
}

// Segment is a named predicate reusable from the IN_SEGMENT builtin.
type Segment struct {
	NameIndex int
	Expr      *Expr
}

// Artifact is the validated in-memory form of a compiled flag set.
type Artifact struct {
	Version     string
	Environment string
	Strings     []string
	// Flags holds one rule list per flag; Flags[i] is the rule list for the
	// flag named FlagNames[i].
	Flags     [][]Rule
	FlagNames []uint16
	Segments  []Segment
	Signature []byte

	flagIndex map[string]int
}

// FlagIndex resolves a flag name to its position in Flags, using the
// flagName -> flagIndex map the codec derives at load time.
func (a *Artifact) FlagIndex(name string) (int, bool) {
	if a == nil || a.flagIndex == nil {
		return 0, false
	}
	idx, ok := a.flagIndex[name]
	return idx, ok
}

// String dereferences a string-table index, bounds-checked.
func (a *Artifact) String(idx int) (string, error) {
	if a == nil || idx < 0 || idx >= len(a.Strings) {
		return "", fmt.Errorf("artifact: string index %d out of range", idx)
	}
	return a.Strings[idx], nil
}

// SegmentByName resolves a segment by literal name, used when IN_SEGMENT's
// second argument is an inline string rather than a string-table index.
func (a *Artifact) SegmentByName(name string) (*Segment, bool) {
	if a == nil {
		return nil, false
	}
	for i := range a.Segments {
		segName, err := a.String(a.Segments[i].NameIndex)
		if err != nil {
			continue
		}
		if segName == name {
			return &a.Segments[i], true
		}
	}
	return nil, false
}

func (a *Artifact) buildFlagIndex() error {
	a.flagIndex = make(map[string]int, len(a.FlagNames))
	for i, nameIdx := range a.FlagNames {
		name, err := a.String(int(nameIdx))
		if err != nil {
			return fmt.Errorf("artifact: flagNames[%d]: %w", i, err)
		}
		a.flagIndex[name] = i
	}
	return nil
}
