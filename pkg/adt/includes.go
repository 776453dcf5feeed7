package adt

import (
	"regexp"
	"strings"
)

// includeStatementRegex matches one INCLUDE statement with its terminating
// period removed, including chained ones ("INCLUDE: a, b").
var includeStatementRegex = regexp.MustCompile(`(?is)^INCLUDE(?:\s*(:)|\s)\s*(.*)$`)

// includeNameRegex accepts plain and namespaced (/NS/NAME) include names.
var includeNameRegex = regexp.MustCompile(`^[A-Z0-9_/$]+$`)

// ParseIncludeStatements returns the upper-cased include names referenced by
// ABAP source, in order of first appearance. Type includes
// (INCLUDE TYPE / INCLUDE STRUCTURE) are not program includes and are skipped.
func ParseIncludeStatements(source string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, stmt := range abapStatements(source) {
		m := includeStatementRegex.FindStringSubmatch(stmt)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[2])
		if m[1] == "" && includeName(body) == "" {
			continue
		}

		for _, part := range strings.Split(body, ",") {
			name := includeName(part)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// includeName extracts the include from one operand, dropping "IF FOUND".
func includeName(operand string) string {
	fields := strings.Fields(operand)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToUpper(fields[0])
	if name == "TYPE" || name == "STRUCTURE" || !includeNameRegex.MatchString(name) {
		return ""
	}
	return name
}

// abapStatements splits source into period-terminated statements with
// comments removed and literal contents blanked.
func abapStatements(source string) []string {
	var stmts []string
	for _, stmt := range strings.Split(stripABAPComments(source), ".") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// stripABAPComments drops full-line comments (leading '*') and trailing
// '"' comments, blanks the contents of '...', `...` and |...| literals, and
// joins the remaining lines with spaces.
func stripABAPComments(source string) string {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "*") {
			continue
		}
		out = append(out, blankLiterals(line))
	}
	return strings.Join(out, " ")
}

// blankLiterals replaces literal contents with spaces, keeping the
// delimiters, and cuts the line at a '"' comment outside any literal.
// A doubled delimiter inside a literal closes and reopens it, which blanks
// the same characters.
func blankLiterals(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	var quote rune
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		case r == '\'' || r == '`' || r == '|':
			quote = r
			b.WriteRune(r)
		case r == '"':
			return b.String()
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
