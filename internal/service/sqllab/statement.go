package sqllab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"bi-demo/internal/domain"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SplitStatements splits a script on semicolons that are outside quoted
// strings and comments. Empty statements are dropped.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func firstKeyword(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	kw := strings.ToUpper(fields[0])
	return strings.TrimLeft(kw, "(")
}

// IsSelect reports whether stmt only reads data.
func IsSelect(stmt string) bool {
	switch firstKeyword(stmt) {
	case "SELECT", "WITH", "VALUES", "EXPLAIN", "PRAGMA", "SHOW", "DESCRIBE":
		return true
	}
	return false
}

// ApplyLimit wraps a SELECT so it returns at most limit rows. Other
// statements are returned unchanged.
func ApplyLimit(stmt string, limit int) string {
	kw := firstKeyword(stmt)
	if limit <= 0 || (kw != "SELECT" && kw != "WITH") {
		return stmt
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS limited_query LIMIT %d", stmt, limit)
}

// BuildCTAS turns a SELECT into a CREATE TABLE|VIEW ... AS statement.
func BuildCTAS(stmt string, method domain.CTASMethod, schema, table string) (string, error) {
	if !method.Valid() {
		return "", domain.ErrValidation("invalid ctas_method %q", method)
	}
	if !IsSelect(stmt) {
		return "", domain.ErrValidation("CREATE %s AS requires a SELECT statement", method)
	}
	if !identPattern.MatchString(table) {
		return "", domain.ErrValidation("invalid table name %q", table)
	}
	target := table
	if schema != "" {
		if !identPattern.MatchString(schema) {
			return "", domain.ErrValidation("invalid schema name %q", schema)
		}
		target = schema + "." + table
	}
	return fmt.Sprintf("CREATE %s %s AS %s", method, target, stmt), nil
}

// DecodeTemplateParams accepts templateParams either as a JSON object or as
// a string holding one.
func DecodeTemplateParams(raw json.RawMessage) (map[string]any, error) {
	params := map[string]any{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, domain.ErrValidation("invalid templateParams: %v", err)
		}
		if strings.TrimSpace(s) == "" {
			return params, nil
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, domain.ErrValidation("invalid templateParams: %v", err)
	}
	return params, nil
}

// RenderTemplate expands {{ .name }} references in sql from params.
// Unknown names are an error.
func RenderTemplate(sql string, params map[string]any) (string, error) {
	if !strings.Contains(sql, "{{") {
		return sql, nil
	}
	tmpl, err := template.New("sql").Option("missingkey=error").Parse(sql)
	if err != nil {
		return "", domain.ErrValidation("invalid template: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", domain.ErrValidation("render template: %v", err)
	}
	return buf.String(), nil
}
