// Package uritemplate implements the tiny RFC 6570 subset MCP resource
// templates need: a template is a literal path with {var} placeholders,
// each matching a maximal run of characters other than '/'. It exists
// so a concrete resource URI can be routed to the ResourceTemplate
// that produced it without pulling in a full RFC 6570
// implementation for a feature set this small (see DESIGN.md for why
// this package uses regexp rather than yosida95/uritemplate/v3).
package uritemplate

import (
	"regexp"
	"strings"
	"sync"
)

var (
	varPattern = regexp.MustCompile(`\{([^{}]+)\}`)

	cacheMu sync.Mutex
	cache   = make(map[string]*compiled)
)

type compiled struct {
	re   *regexp.Regexp
	vars []string
}

// compile turns a template like "file:///{path}" into a regexp with one
// capture group per {var}, in the order they appear.
func compile(template string) *compiled {
	cacheMu.Lock()
	if c, ok := cache[template]; ok {
		cacheMu.Unlock()
		return c
	}
	cacheMu.Unlock()

	var vars []string
	var pattern strings.Builder
	pattern.WriteByte('^')

	last := 0
	for _, loc := range varPattern.FindAllStringSubmatchIndex(template, -1) {
		pattern.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		vars = append(vars, template[loc[2]:loc[3]])
		pattern.WriteString(`([^/]+)`)
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(template[last:]))
	pattern.WriteByte('$')

	c := &compiled{re: regexp.MustCompile(pattern.String()), vars: vars}

	cacheMu.Lock()
	cache[template] = c
	cacheMu.Unlock()
	return c
}

// Matches reports whether uri is an instantiation of template.
func Matches(uri, template string) bool {
	return compile(template).re.MatchString(uri)
}

// Extract matches uri against template and, on success, returns the
// values bound to each {var} placeholder. ok is false if uri does not
// match template at all.
func Extract(uri, template string) (vars map[string]string, ok bool) {
	c := compile(template)
	m := c.re.FindStringSubmatch(uri)
	if m == nil {
		return nil, false
	}
	vars = make(map[string]string, len(c.vars))
	for i, name := range c.vars {
		vars[name] = m[i+1]
	}
	return vars, true
}

// Expand substitutes vars into template, the inverse of Extract. A
// missing variable is substituted as the empty string.
func Expand(template string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		return vars[name]
	})
}
