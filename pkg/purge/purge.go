// Package purge removes style rules whose selectors are not referenced by a set of content
// files. It is the pruning step of the production stylesheet pipeline.
package purge

import (
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Safelist names selectors that must survive pruning even if no content file mentions them
type Safelist struct {
	// Standard entries are compared with every class, id and tag name of a selector. Entries
	// with spaces contribute each word.
	Standard []string
	// Greedy patterns are tested against every part of a selector (class, id and tag names,
	// pseudo-classes as :name) and against the complete selector text. One match keeps the
	// whole selector.
	Greedy []*regexp.Regexp
}

// Stats summarizes a Prune call
type Stats struct {
	Selectors int
	Removed   int
}

// at-rules whose contents are never pruned
var keepAtRules = map[string]bool{
	"@keyframes":     true,
	"@font-face":     true,
	"@page":          true,
	"@counter-style": true,
	"@property":      true,
}

// isKeptAtRule ignores vendor prefixes like @-webkit-keyframes
func isKeptAtRule(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "@-") {
		if idx := strings.IndexByte(name[2:], '-'); idx != -1 {
			name = "@" + name[idx+3:]
		}
	}
	return keepAtRules[name]
}

type node struct {
	// name is empty for style rules and the at-keyword (@media) for at-rules
	name      string
	prelude   string
	selectors []string
	decls     []string
	children  []*node
	raw       strings.Builder
	// block is false for statements like @import and @charset
	block   bool
	comment string
}

func tokensString(tokens []css.Token) string {
	var sb strings.Builder
	for _, token := range tokens {
		sb.Write(token.Data)
	}
	return strings.TrimSpace(sb.String())
}

// splitSelectors splits a selector list at top-level commas
func splitSelectors(tokens []css.Token) [][]css.Token {
	var result [][]css.Token
	level := 0
	start := 0

	for idx, token := range tokens {
		switch token.TokenType {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			level--
		case css.CommaToken:
			if level == 0 {
				result = append(result, tokens[start:idx])
				start = idx + 1
			}
		}
	}

	return append(result, tokens[start:])
}

func parseStylesheet(src []byte) (*node, error) {
	parser := css.NewParser(parse.NewInputBytes(src), false)
	root := &node{block: true}
	stack := []*node{root}

	for {
		gt, _, data := parser.Next()
		current := stack[len(stack)-1]

		switch gt {
		case css.ErrorGrammar:
			if parser.HasParseError() {
				return nil, eris.Wrap(parser.Err(), "failed to parse stylesheet")
			}
			if err := parser.Err(); err != nil && err != io.EOF {
				return nil, eris.Wrap(err, "failed to read stylesheet")
			}
			if len(stack) > 1 {
				return nil, eris.New("unexpected end of stylesheet")
			}
			return root, nil
		case css.CommentGrammar:
			current.children = append(current.children, &node{comment: string(data)})
		case css.AtRuleGrammar:
			current.children = append(current.children, &node{
				name:    string(data),
				prelude: tokensString(parser.Values()),
			})
		case css.BeginAtRuleGrammar:
			child := &node{
				name:    string(data),
				prelude: tokensString(parser.Values()),
				block:   true,
			}
			current.children = append(current.children, child)
			stack = append(stack, child)
		case css.BeginRulesetGrammar:
			child := &node{block: true}
			for _, selector := range splitSelectors(parser.Values()) {
				child.selectors = append(child.selectors, tokensString(selector))
			}
			current.children = append(current.children, child)
			stack = append(stack, child)
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case css.DeclarationGrammar:
			current.decls = append(current.decls, string(data)+":"+tokensString(parser.Values()))
		case css.CustomPropertyGrammar:
			values := parser.Values()
			value := ""
			if len(values) > 0 {
				value = strings.TrimSpace(string(values[0].Data))
			}
			current.decls = append(current.decls, string(data)+":"+value)
		case css.TokenGrammar:
			// contents of unknown at-rules are passed through untouched
			if len(stack) > 1 {
				current.raw.Write(data)
			}
		}
	}
}

// Prune removes every selector of src that is neither used by content nor safelisted. Rules
// that lose all their selectors and at-rule blocks that end up empty are dropped.
func Prune(src []byte, content *Content, safelist Safelist) ([]byte, Stats, error) {
	root, err := parseStylesheet(src)
	if err != nil {
		return nil, Stats{}, err
	}

	matcher := newMatcher(content, safelist)
	stats := Stats{}
	matcher.prune(root, &stats)

	var sb strings.Builder
	for _, child := range root.children {
		write(&sb, child)
	}
	return []byte(sb.String()), stats, nil
}

type matcher struct {
	content  *Content
	standard map[string]bool
	greedy   []*regexp.Regexp
}

func newMatcher(content *Content, safelist Safelist) *matcher {
	m := &matcher{
		content:  content,
		standard: make(map[string]bool),
		greedy:   safelist.Greedy,
	}
	for _, entry := range safelist.Standard {
		for _, word := range strings.Fields(entry) {
			m.standard[strings.TrimLeft(word, ".#")] = true
		}
	}
	return m
}

// prune filters the children of n in place and reports whether anything is left
func (m *matcher) prune(n *node, stats *Stats) bool {
	kept := n.children[:0]
	for _, child := range n.children {
		switch {
		case child.comment != "":
			kept = append(kept, child)
		case child.name == "":
			selectors := child.selectors[:0]
			for _, selector := range child.selectors {
				stats.Selectors++
				if m.keepSelector(selector) {
					selectors = append(selectors, selector)
				} else {
					stats.Removed++
				}
			}
			child.selectors = selectors
			if len(selectors) > 0 {
				kept = append(kept, child)
			}
		case !child.block || isKeptAtRule(child.name) || child.raw.Len() > 0:
			kept = append(kept, child)
		default:
			if m.prune(child, stats) || len(child.decls) > 0 {
				kept = append(kept, child)
			}
		}
	}
	n.children = kept

	for _, child := range kept {
		if child.comment == "" {
			return true
		}
	}
	return false
}

func (m *matcher) keepSelector(selector string) bool {
	names, pseudos := scanSelector(selector)
	if m.greedyMatch(selector, names, pseudos) {
		return true
	}

	for _, name := range names {
		if m.standard[name] {
			continue
		}
		if m.content != nil && m.content.Has(name) {
			continue
		}
		return false
	}

	return true
}

func (m *matcher) greedyMatch(selector string, parts ...[]string) bool {
	for _, pattern := range m.greedy {
		if pattern.MatchString(selector) {
			return true
		}
		for _, list := range parts {
			for _, part := range list {
				if pattern.MatchString(part) {
					return true
				}
			}
		}
	}
	return false
}

// scanSelector returns the class, id and tag names of a selector outside of pseudo-class
// arguments and attribute selectors, plus its top-level pseudo-classes and pseudo-elements
// (":hover", ":placeholder", ":not").
func scanSelector(selector string) (names, pseudos []string) {
	lexer := css.NewLexer(parse.NewInputString(selector))
	level := 0
	prev := css.WhitespaceToken
	prevData := ""

	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			return names, pseudos
		}

		switch tt {
		case css.FunctionToken:
			if level == 0 && prev == css.ColonToken {
				pseudos = append(pseudos, ":"+strings.ToLower(strings.TrimSuffix(string(data), "(")))
			}
			level++
		case css.LeftParenthesisToken, css.LeftBracketToken:
			level++
		case css.RightParenthesisToken, css.RightBracketToken:
			level--
		case css.HashToken:
			if level == 0 {
				names = append(names, unescape(string(data[1:])))
			}
		case css.IdentToken:
			if level == 0 {
				switch {
				case prev == css.DelimToken && prevData == ".":
					names = append(names, unescape(string(data)))
				case prev == css.ColonToken:
					pseudos = append(pseudos, ":"+strings.ToLower(string(data)))
				default:
					names = append(names, strings.ToLower(unescape(string(data))))
				}
			}
		}

		prev = tt
		prevData = string(data)
	}
}

func unescape(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}

	var sb strings.Builder
	escaped := false
	for _, r := range name {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func write(sb *strings.Builder, n *node) {
	if n.comment != "" {
		sb.WriteString(n.comment)
		sb.WriteByte('\n')
		return
	}

	if n.name == "" {
		sb.WriteString(strings.Join(n.selectors, ", "))
		sb.WriteString(" {\n")
		writeBody(sb, n)
		sb.WriteString("}\n")
		return
	}

	sb.WriteString(n.name)
	if n.prelude != "" {
		sb.WriteByte(' ')
		sb.WriteString(n.prelude)
	}
	if !n.block {
		sb.WriteString(";\n")
		return
	}

	sb.WriteString(" {\n")
	writeBody(sb, n)
	sb.WriteString("}\n")
}

func writeBody(sb *strings.Builder, n *node) {
	for _, decl := range n.decls {
		sb.WriteString("  ")
		sb.WriteString(decl)
		sb.WriteString(";\n")
	}
	for _, child := range n.children {
		write(sb, child)
	}
	if n.raw.Len() > 0 {
		sb.WriteString(strings.TrimSpace(n.raw.String()))
		sb.WriteByte('\n')
	}
}
