package filter

import "strings"

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpLt
	OpGte
	OpLte
	OpContains
	OpIContains
	OpILike
	OpIn
	OpNotIn
	OpIncludeAll
	OpIncludeAny
	OpExcludeAll
	OpExcludeAny
	OpOverlap
	OpIsNull
	OpJSONIsNull
	OpHasAnyKeys
)

const (
	sep           = "__"
	tokenOr       = "or"
	tokenCoalesce = "coalesce"
	tokenDate     = "date"
	tokenOffset   = "with_offset"
	tokenInPair   = "in_pair"

	suffixIfExists = "_if_exists"
	suffixInPair   = "_in_pair"
)

var opTokens = map[string]Op{
	"gt":              OpGt,
	"lt":              OpLt,
	"gte":             OpGte,
	"lte":             OpLte,
	"contains":        OpContains,
	"icontains":       OpIContains,
	"ilike":           OpILike,
	"in":              OpIn,
	"in_subquery":     OpIn,
	"not_in":          OpNotIn,
	"not_in_subquery": OpNotIn,
	"include_all":     OpIncludeAll,
	"include_any":     OpIncludeAny,
	"exclude_all":     OpExcludeAll,
	"exclude_any":     OpExcludeAny,
	"overlap":         OpOverlap,
	"isnull":          OpIsNull,
	"jsonb_isnull":    OpJSONIsNull,
	"has_any_keys":    OpHasAnyKeys,
}

var opNames = map[Op]string{
	OpEq:         "eq",
	OpGt:         "gt",
	OpLt:         "lt",
	OpGte:        "gte",
	OpLte:        "lte",
	OpContains:   "contains",
	OpIContains:  "icontains",
	OpILike:      "ilike",
	OpIn:         "in",
	OpNotIn:      "not_in",
	OpIncludeAll: "include_all",
	OpIncludeAny: "include_any",
	OpExcludeAll: "exclude_all",
	OpExcludeAny: "exclude_any",
	OpOverlap:    "overlap",
	OpIsNull:     "isnull",
	OpJSONIsNull: "jsonb_isnull",
	OpHasAnyKeys: "has_any_keys",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

func (o Op) comparison() bool {
	switch o {
	case OpEq, OpGt, OpLt, OpGte, OpLte:
		return true
	}
	return false
}

func (o Op) pattern() bool {
	return o == OpContains || o == OpIContains
}

func (o Op) array() bool {
	switch o {
	case OpIncludeAll, OpIncludeAny, OpExcludeAll, OpExcludeAny, OpOverlap:
		return true
	}
	return false
}

func (o Op) json() bool {
	return o == OpJSONIsNull || o == OpHasAnyKeys
}

// Lookup is a parsed filter key.
type Lookup struct {
	Columns []string
	Op      Op

	// Date compares CAST(operand AS DATE); Offset shifts the operand by a
	// minute offset first.
	Date   bool
	Offset bool

	// Coalesce uses COALESCE(columns...) as the operand.
	Coalesce bool

	// Pair marks the two-column variants.
	Pair bool

	// OrNull also admits rows where the operand IS NULL.
	OrNull bool

	// AnyPattern matches a list of substrings; NotAll negates the
	// conjunction of all of them.
	AnyPattern bool
	NotAll     bool
}

// ParseKey parses a column filter key such as "created__date__gte" or
// "a__or__b__include_all_in_pair". Relation prefixes are not handled here.
func ParseKey(key string) (Lookup, bool) {
	tokens := strings.Split(key, sep)
	if len(tokens) == 0 || tokens[0] == "" {
		return Lookup{}, false
	}

	l := Lookup{Columns: []string{tokens[0]}}
	i := 1
	for i+1 < len(tokens) && tokens[i] == tokenOr {
		if tokens[i+1] == "" {
			return Lookup{}, false
		}
		l.Columns = append(l.Columns, tokens[i+1])
		i += 2
	}

	opSet := false
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if !opSet {
			switch tok {
			case tokenCoalesce:
				if l.Coalesce || l.Date {
					return Lookup{}, false
				}
				l.Coalesce = true
				continue
			case tokenDate:
				if l.Date {
					return Lookup{}, false
				}
				l.Date = true
				continue
			case tokenOffset:
				if !l.Date || l.Offset {
					return Lookup{}, false
				}
				l.Offset = true
				continue
			case tokenInPair:
				l.Op, l.Pair, opSet = OpIn, true, true
				continue
			}
			op, ok := parseOp(tok, &l)
			if !ok {
				return Lookup{}, false
			}
			l.Op, opSet = op, true
			continue
		}

		switch {
		case tok == tokenInPair && !l.Pair:
			l.Pair = true
		case l.Op.pattern() && tok == "in" && !l.AnyPattern:
			l.AnyPattern = true
		case l.Op.pattern() && tok == "not_in" && !l.AnyPattern:
			l.AnyPattern, l.NotAll = true, true
		default:
			return Lookup{}, false
		}
	}

	if (l.Pair || l.Coalesce) && l.Op.pattern() {
		l.AnyPattern = true
	}
	if l.Date && !(l.Op.comparison() || l.Op == OpIn || l.Op == OpNotIn) {
		return Lookup{}, false
	}
	if l.Offset && l.Pair {
		return Lookup{}, false
	}
	return l, true
}

func parseOp(tok string, l *Lookup) (Op, bool) {
	if base, ok := strings.CutSuffix(tok, suffixIfExists); ok {
		tok = base
		l.OrNull = true
	}
	if base, ok := strings.CutSuffix(tok, suffixInPair); ok {
		tok = base
		l.Pair = true
	}
	op, ok := opTokens[tok]
	return op, ok
}
