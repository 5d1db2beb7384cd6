package structured

import (
	"strings"
	"unicode"
)

// splitWords splits a camelCase, PascalCase, snake_case or kebab-case name
// into lower-case words. "subLessonID" -> [sub lesson id].
func splitWords(name string) []string {
	var words []string
	var cur []rune
	runes := []rune(name)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			// boundary before an upper rune unless inside an acronym run
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (nextLower && len(cur) > 0) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func snakeCase(name string) string { return strings.Join(splitWords(name), "_") }

func kebabCase(name string) string { return strings.Join(splitWords(name), "-") }

func pascalCase(name string) string {
	var sb strings.Builder
	for _, w := range splitWords(name) {
		sb.WriteString(upperFirst(w))
	}
	return sb.String()
}

func lowerCamel(name string) string {
	words := splitWords(name)
	if len(words) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(words[0])
	for _, w := range words[1:] {
		sb.WriteString(upperFirst(w))
	}
	return sb.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// aliasTable returns alternate key -> canonical property name for an object
// schema. Explicit aliases come first, then derived snake_case, kebab-case
// and PascalCase spellings. Alternates claimed by two properties, or equal
// to a canonical name, are dropped.
func aliasTable(s *Schema) map[string]string {
	canonical := make(map[string]bool, len(s.Properties))
	for _, p := range s.Properties {
		canonical[p.Name] = true
	}

	owner := make(map[string]string)
	ambiguous := make(map[string]bool)
	claim := func(alt, name string) {
		if alt == "" || canonical[alt] || ambiguous[alt] {
			return
		}
		if prev, ok := owner[alt]; ok && prev != name {
			delete(owner, alt)
			ambiguous[alt] = true
			return
		}
		owner[alt] = name
	}

	for _, p := range s.Properties {
		for _, a := range p.Aliases {
			claim(a, p.Name)
		}
	}
	for _, p := range s.Properties {
		claim(snakeCase(p.Name), p.Name)
		claim(kebabCase(p.Name), p.Name)
		claim(pascalCase(p.Name), p.Name)
	}
	return owner
}

// alternatesFor lists the alternates of one property in lookup order.
func alternatesFor(p *Property, table map[string]string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(alt string) {
		if !seen[alt] && table[alt] == p.Name {
			seen[alt] = true
			out = append(out, alt)
		}
	}
	for _, a := range p.Aliases {
		add(a)
	}
	add(snakeCase(p.Name))
	add(kebabCase(p.Name))
	add(pascalCase(p.Name))
	return out
}
