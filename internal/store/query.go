package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Where is a single-operand GraphQL filter on a text property
type Where struct {
	Path      []string
	Operator  string
	ValueText []string
}

// ContainsAny filters objects whose property at path holds any of values
func ContainsAny(path string, values ...string) *Where {
	return &Where{Path: []string{path}, Operator: "ContainsAny", ValueText: values}
}

// BuildIDQuery renders a Get query selecting only object ids
func BuildIDQuery(collection string, where *Where, limit int) string {
	var args []string
	if where != nil {
		args = append(args, fmt.Sprintf("where: {path: %s, operator: %s, valueText: %s}",
			gqlStrings(where.Path), where.Operator, gqlStrings(where.ValueText)))
	}
	if limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", limit))
	}

	argList := ""
	if len(args) > 0 {
		argList = "(" + strings.Join(args, ", ") + ")"
	}
	return fmt.Sprintf("{ Get { %s%s { _additional { id } } } }", collection, argList)
}

// GraphQL string literals share JSON's escaping rules.
func gqlStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}
