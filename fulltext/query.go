package fulltext

import "strings"

// Presence controls how a clause filters documents.
type Presence uint8

const (
	// Optional clauses contribute to the score. Without required clauses a
	// document must match at least one optional clause.
	Optional Presence = iota
	// Required clauses must match every returned document.
	Required
	// Prohibited clauses exclude the documents they match.
	Prohibited
)

func (p Presence) String() string {
	switch p {
	case Required:
		return "required"
	case Prohibited:
		return "prohibited"
	default:
		return "optional"
	}
}

// Clause is one term of a query.
type Clause struct {
	// Field restricts the clause to one field. Empty means every field.
	Field    string
	Term     string
	Prefix   bool
	Presence Presence
}

// Query is a parsed search query.
type Query struct {
	Clauses []Clause
}

// ParseQuery parses whitespace separated clauses of the form
// [+|-][field:]term[*]. Terms go through the same tokenizer as indexed text;
// a term that splits into several tokens yields one clause per token, and a
// plain term that is only stop words yields none. A +term or -term is kept
// even then: stop words and single runes are never indexed, so such a
// required clause matches nothing and such a prohibited clause excludes
// nothing.
func ParseQuery(s string) Query {
	var q Query
	for _, raw := range strings.Fields(s) {
		presence := Optional
		if len(raw) > 1 {
			switch raw[0] {
			case '+':
				presence, raw = Required, raw[1:]
			case '-':
				presence, raw = Prohibited, raw[1:]
			}
		}

		var field string
		if i := strings.IndexByte(raw, ':'); i > 0 {
			field, raw = raw[:i], raw[i+1:]
		}

		prefix := strings.HasSuffix(raw, "*")
		raw = strings.TrimRight(raw, "*")

		toks := tokens(raw, prefix)
		if len(toks) == 0 && presence != Optional {
			toks = strings.FieldsFunc(fold(raw), isSeparator)
		}
		for i, tok := range toks {
			q.Clauses = append(q.Clauses, Clause{
				Field:    field,
				Term:     tok,
				Prefix:   prefix && i == len(toks)-1,
				Presence: presence,
			})
		}
	}
	return q
}

// String formats q back into query syntax.
func (q Query) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		var sb strings.Builder
		switch c.Presence {
		case Required:
			sb.WriteByte('+')
		case Prohibited:
			sb.WriteByte('-')
		}
		if c.Field != "" {
			sb.WriteString(c.Field)
			sb.WriteByte(':')
		}
		sb.WriteString(c.Term)
		if c.Prefix {
			sb.WriteByte('*')
		}
		parts[i] = sb.String()
	}
	return strings.Join(parts, " ")
}
