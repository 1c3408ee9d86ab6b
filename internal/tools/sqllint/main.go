// Command sqllint checks that every inline SQL constant starts with a
// "--sql <uuid>" audit marker and that no marker is reused.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlMarkerPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}

	violations, err := lint(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL audit marker problems")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
		}
		os.Exit(1)
	}
}

// query is one SQL constant found in a file.
type query struct {
	file   string
	line   int
	name   string
	marker string
}

func lint(targets []string) ([]violation, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				files = append(files, target)
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var (
		violations []violation
		queries    []query
	)
	for _, path := range files {
		qs, err := scanFile(path)
		if err != nil {
			return nil, err
		}
		queries = append(queries, qs...)
	}

	seen := make(map[string]query, len(queries))
	for _, q := range queries {
		m := uuidMarkerPattern.FindStringSubmatch(q.marker)
		if m == nil {
			violations = append(violations, violation{file: q.file, line: q.line, name: q.name, message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if prev, dup := seen[m[1]]; dup {
			violations = append(violations, violation{
				file:    q.file,
				line:    q.line,
				name:    q.name,
				message: fmt.Sprintf("marker %s already used by %s", m[1], prev.name),
			})
			continue
		}
		seen[m[1]] = q
	}
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	return violations, nil
}

func scanFile(path string) ([]query, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	var queries []query
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			parts := stringParts(value)
			if len(parts) == 0 {
				continue
			}
			if !sqlMarkerPattern.MatchString(strings.Join(parts, " ")) {
				continue
			}
			name := joinNames(vs.Names)
			if i < len(vs.Names) {
				name = vs.Names[i].Name
			}
			queries = append(queries, query{
				file:   path,
				line:   fset.Position(value.Pos()).Line,
				name:   name,
				marker: firstLine(parts[0]),
			})
		}
		return true
	})
	return queries, nil
}

// stringParts returns the literal pieces of a string constant, following
// concatenations left to right. Identifiers in the chain are skipped.
func stringParts(expr ast.Expr) []string {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return nil
		}
		raw, err := unquote(e.Value)
		if err != nil {
			return nil
		}
		return []string{raw}
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return nil
		}
		return append(stringParts(e.X), stringParts(e.Y)...)
	case *ast.ParenExpr:
		return stringParts(e.X)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
