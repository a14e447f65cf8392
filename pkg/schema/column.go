package schema

import "strings"

// Type is the declared SQL type family of a column. Only the families the
// filter compiler cares about are distinguished.
type Type int

const (
	TypeUnknown Type = iota
	TypeInteger
	TypeBigInt
	TypeSmallInt
	TypeText
	TypeBoolean
	TypeDate
	TypeTimestamp
	TypeJSON
	TypeArray
)

var typeNames = map[Type]string{
	TypeUnknown:   "unknown",
	TypeInteger:   "integer",
	TypeBigInt:    "bigint",
	TypeSmallInt:  "smallint",
	TypeText:      "text",
	TypeBoolean:   "boolean",
	TypeDate:      "date",
	TypeTimestamp: "timestamp",
	TypeJSON:      "json",
	TypeArray:     "array",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType maps a SQL type name onto a Type family.
func ParseType(name string) Type {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(n, "[]"):
		return TypeArray
	case n == "integer" || n == "int" || n == "int4" || n == "serial":
		return TypeInteger
	case n == "bigint" || n == "int8" || n == "bigserial":
		return TypeBigInt
	case n == "smallint" || n == "int2":
		return TypeSmallInt
	case n == "text" || n == "varchar" || strings.HasPrefix(n, "character") || strings.HasPrefix(n, "varchar("):
		return TypeText
	case n == "boolean" || n == "bool":
		return TypeBoolean
	case n == "date":
		return TypeDate
	case strings.HasPrefix(n, "timestamp"):
		return TypeTimestamp
	case n == "json" || n == "jsonb":
		return TypeJSON
	}
	return TypeUnknown
}

// Column is a named, typed table column.
type Column struct {
	Name string
	Type Type
}

// Col is shorthand for a Column literal.
func Col(name string, t Type) Column {
	return Column{Name: name, Type: t}
}

// Constraint is a named unique constraint over an ordered column list.
type Constraint struct {
	Name    string
	Columns []string
}
