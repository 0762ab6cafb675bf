package evalexpr

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/ctrlpath/evalcore/internal/artifact"
)

// evalFunc dispatches FUNC nodes by code. Every malformed-call failure mode
// (wrong arity, wrong-typed args, unknown code) collapses to
// BoolValue(false) so the catalog never propagates an error for a malformed
// rule; only lookups that touch the string table (a codec-bug class of
// failure, not a data class) return an error.
func (s *state) evalFunc(expr *artifact.Expr) (Value, error) {
	args := make([]Value, len(expr.Args))
	for i, a := range expr.Args {
		v, err := s.eval(a)
		if err != nil {
			return Null(), err
		}
		args[i] = v
	}

	switch expr.FuncCode {
	case artifact.FuncStartsWith:
		return fnStartsWith(args), nil
	case artifact.FuncEndsWith:
		return fnEndsWith(args), nil
	case artifact.FuncContains:
		return fnContains(args), nil
	case artifact.FuncIn:
		return fnIn(args), nil
	case artifact.FuncMatches:
		return fnMatches(args), nil
	case artifact.FuncUpper:
		return fnUpper(args), nil
	case artifact.FuncLower:
		return fnLower(args), nil
	case artifact.FuncLength:
		return fnLength(args), nil
	case artifact.FuncIntersects:
		return fnIntersects(args), nil
	case artifact.FuncSemverEq, artifact.FuncSemverGt, artifact.FuncSemverGte, artifact.FuncSemverLt, artifact.FuncSemverLte:
		return fnSemver(expr.FuncCode, args), nil
	case artifact.FuncHash:
		return fnHash(args), nil
	case artifact.FuncCoalesce:
		return fnCoalesce(args), nil
	case artifact.FuncIsBetween:
		return fnIsBetween(args, s.clock), nil
	case artifact.FuncIsAfter:
		return fnIsAfter(args, s.clock), nil
	case artifact.FuncIsBefore:
		return fnIsBefore(args, s.clock), nil
	case artifact.FuncDayOfWeek:
		return fnDayOfWeek(s.clock), nil
	case artifact.FuncHourOfDay:
		return fnHourOfDay(s.clock), nil
	case artifact.FuncDayOfMonth:
		return fnDayOfMonth(s.clock), nil
	case artifact.FuncMonth:
		return fnMonth(s.clock), nil
	case artifact.FuncCurrentTimestamp:
		return fnCurrentTimestamp(s.clock), nil
	case artifact.FuncInSegment:
		return s.fnInSegment(args)
	default:
		return BoolValue(false), nil
	}
}

func fnStartsWith(args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return BoolValue(false)
	}
	return BoolValue(strings.HasPrefix(args[0].Str, args[1].Str))
}

func fnEndsWith(args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return BoolValue(false)
	}
	return BoolValue(strings.HasSuffix(args[0].Str, args[1].Str))
}

func fnContains(args []Value) Value {
	if len(args) != 2 {
		return BoolValue(false)
	}
	switch args[0].Kind {
	case KindString:
		if args[1].Kind != KindString {
			return BoolValue(false)
		}
		return BoolValue(strings.Contains(args[0].Str, args[1].Str))
	case KindList:
		return BoolValue(listIncludes(args[0].List, args[1]))
	default:
		return BoolValue(false)
	}
}

func fnIn(args []Value) Value {
	if len(args) != 2 || args[1].Kind != KindList {
		return BoolValue(false)
	}
	return BoolValue(listIncludes(args[1].List, args[0]))
}

func fnMatches(args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return BoolValue(false)
	}
	re, err := regexp.Compile(args[1].Str)
	if err != nil {
		return BoolValue(false)
	}
	return BoolValue(re.MatchString(args[0].Str))
}

func fnUpper(args []Value) Value {
	if len(args) != 1 || args[0].Kind != KindString {
		return BoolValue(false)
	}
	return StringValue(strings.ToUpper(args[0].Str))
}

func fnLower(args []Value) Value {
	if len(args) != 1 || args[0].Kind != KindString {
		return BoolValue(false)
	}
	return StringValue(strings.ToLower(args[0].Str))
}

func fnLength(args []Value) Value {
	if len(args) != 1 {
		return BoolValue(false)
	}
	switch args[0].Kind {
	case KindString:
		return NumberValue(float64(len([]rune(args[0].Str))))
	case KindList:
		return NumberValue(float64(len(args[0].List)))
	default:
		return BoolValue(false)
	}
}

func fnIntersects(args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindList || args[1].Kind != KindList {
		return BoolValue(false)
	}
	for _, a := range args[0].List {
		if listIncludes(args[1].List, a) {
			return BoolValue(true)
		}
	}
	return BoolValue(false)
}

func fnSemver(code artifact.FuncCode, args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return BoolValue(false)
	}
	a, aok := normalizeSemver(args[0].Str)
	b, bok := normalizeSemver(args[1].Str)
	if !aok || !bok {
		return BoolValue(false)
	}
	cmp := semver.Compare(a, b)
	switch code {
	case artifact.FuncSemverEq:
		return BoolValue(cmp == 0)
	case artifact.FuncSemverGt:
		return BoolValue(cmp > 0)
	case artifact.FuncSemverGte:
		return BoolValue(cmp >= 0)
	case artifact.FuncSemverLt:
		return BoolValue(cmp < 0)
	case artifact.FuncSemverLte:
		return BoolValue(cmp <= 0)
	default:
		return BoolValue(false)
	}
}

// normalizeSemver prefixes bare "1.2.3"-style versions with "v", the form
// golang.org/x/mod/semver requires.
func normalizeSemver(v string) (string, bool) {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}

func fnHash(args []Value) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindNumber {
		return BoolValue(false)
	}
	buckets := int64(args[1].Number)
	if buckets <= 0 {
		return BoolValue(false)
	}
	return NumberValue(float64(Bucket(args[0].Str, uint64(buckets))))
}

func fnCoalesce(args []Value) Value {
	if len(args) == 0 {
		return BoolValue(false)
	}
	for _, a := range args {
		if a.Kind != KindNull {
			return a
		}
	}
	return Null()
}

func fnIsBetween(args []Value, clock Clock) Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return BoolValue(false)
	}
	t0, err := time.Parse(time.RFC3339, args[0].Str)
	if err != nil {
		return BoolValue(false)
	}
	t1, err := time.Parse(time.RFC3339, args[1].Str)
	if err != nil {
		return BoolValue(false)
	}
	now := clock.Now()
	return BoolValue(!now.Before(t0) && !now.After(t1))
}

func fnIsAfter(args []Value, clock Clock) Value {
	if len(args) != 1 || args[0].Kind != KindString {
		return BoolValue(false)
	}
	t, err := time.Parse(time.RFC3339, args[0].Str)
	if err != nil {
		return BoolValue(false)
	}
	return BoolValue(clock.Now().After(t))
}

func fnIsBefore(args []Value, clock Clock) Value {
	if len(args) != 1 || args[0].Kind != KindString {
		return BoolValue(false)
	}
	t, err := time.Parse(time.RFC3339, args[0].Str)
	if err != nil {
		return BoolValue(false)
	}
	return BoolValue(clock.Now().Before(t))
}

var weekdayNames = [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

func fnDayOfWeek(clock Clock) Value {
	return StringValue(weekdayNames[int(clock.Now().Weekday())])
}

func fnHourOfDay(clock Clock) Value {
	return NumberValue(float64(clock.Now().Hour()))
}

func fnDayOfMonth(clock Clock) Value {
	return NumberValue(float64(clock.Now().Day()))
}

func fnMonth(clock Clock) Value {
	return NumberValue(float64(clock.Now().Month()))
}

func fnCurrentTimestamp(clock Clock) Value {
	return StringValue(clock.Now().Format(time.RFC3339))
}

func (s *state) fnInSegment(args []Value) (Value, error) {
	if len(args) != 2 || args[1].Kind != KindString {
		return BoolValue(false), nil
	}
	if s.segments == nil {
		return BoolValue(false), nil
	}
	ok, err := s.segments.ResolveSegment(args[1].Str)
	if err != nil {
		return BoolValue(false), nil
	}
	return BoolValue(ok), nil
}
