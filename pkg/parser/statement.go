package parser

import (
	"errors"
	"regexp"
	"strings"
)

var readOnlyKeywords = map[string]struct{}{
	"SELECT":   {},
	"WITH":     {},
	"EXPLAIN":  {},
	"SHOW":     {},
	"DESCRIBE": {},
	"DESC":     {},
	"PRAGMA":   {},
	"VALUES":   {},
}

// writeKeywordRe matches reserved write keywords anywhere in the statement.
// Words that double as function or column names (REPLACE, COPY, CALL, LOCK)
// only match in their statement form.
var writeKeywordRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|ATTACH|DETACH|GRANT|REVOKE|MERGE|VACUUM|REINDEX)\b|\b(REPLACE\s+INTO|COPY\s+\w+\s+(FROM|TO)|LOCK\s+TABLES?)\b|\bCALL\s+\w+\s*\(`)

var (
	errEmptyStatement    = errors.New("empty SQL statement")
	errMultipleStatement = errors.New("only one SQL statement is allowed per request")
	errUnterminatedQuote = errors.New("unterminated quoted string or identifier")
)

// NormalizeStatement strips comments and trailing semicolons and checks that
// raw holds exactly one read-only statement.
func NormalizeStatement(raw string) (string, error) {
	statements, masked, err := splitStatements(raw)
	if err != nil {
		return "", err
	}
	switch {
	case len(statements) == 0:
		return "", errEmptyStatement
	case len(statements) > 1:
		return "", errMultipleStatement
	}
	stmt := statements[0]
	keyword := firstKeyword(stmt)
	if _, ok := readOnlyKeywords[keyword]; !ok {
		return "", &readOnlyError{keyword: keyword}
	}
	if m := writeKeywordRe.FindString(masked[0]); m != "" {
		return "", &readOnlyError{keyword: strings.ToUpper(strings.Fields(m)[0])}
	}
	if keyword == "PRAGMA" && strings.Contains(masked[0], "=") {
		return "", &readOnlyError{keyword: "PRAGMA assignment"}
	}
	return stmt, nil
}

type readOnlyError struct {
	keyword string
}

func (e *readOnlyError) Error() string {
	if e.keyword == "" {
		return "statement is not read-only"
	}
	return "statement is not read-only: " + e.keyword + " is not allowed"
}

func firstKeyword(stmt string) string {
	s := strings.TrimLeft(stmt, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_')
	})
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToUpper(s)
}

// splitStatements drops comments and splits on semicolons outside quotes.
// The second result mirrors the first with quoted content blanked out, so
// keyword checks never look inside literals or quoted identifiers.
func splitStatements(raw string) ([]string, []string, error) {
	var (
		statements []string
		masks      []string
		cur        strings.Builder
		mask       strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		m := strings.TrimSpace(mask.String())
		if s != "" {
			statements = append(statements, s)
			masks = append(masks, m)
		}
		cur.Reset()
		mask.Reset()
	}

	rs := []rune(raw)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			cur.WriteRune(' ')
			mask.WriteRune(' ')
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			end := -1
			for j := i + 2; j+1 < len(rs); j++ {
				if rs[j] == '*' && rs[j+1] == '/' {
					end = j + 1
					break
				}
			}
			if end < 0 {
				i = len(rs)
			} else {
				i = end
			}
			cur.WriteRune(' ')
			mask.WriteRune(' ')
		case r == '\'' || r == '"' || r == '`' || r == '[':
			closing := r
			if r == '[' {
				closing = ']'
			}
			cur.WriteRune(r)
			mask.WriteRune(r)
			closed := false
			for i++; i < len(rs); i++ {
				cur.WriteRune(rs[i])
				if rs[i] == closing {
					// doubled quote is an escaped quote
					if closing != ']' && i+1 < len(rs) && rs[i+1] == closing {
						i++
						cur.WriteRune(rs[i])
						mask.WriteString("  ")
						continue
					}
					mask.WriteRune(closing)
					closed = true
					break
				}
				mask.WriteRune(' ')
			}
			if !closed {
				return nil, nil, errUnterminatedQuote
			}
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
			mask.WriteRune(r)
		}
	}
	flush()
	return statements, masks, nil
}
