// Package router decides which dataset an uploaded file belongs to.
// The legacy scripts each did their own substring checks on filenames; here
// the rules live in one ordered table so the same name always routes the
// same way, and an unmatched name is an explicit error instead of a guess.
package router

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"sheetpipe/internal/core"
)

// Rule routes filenames containing any of its tokens to a dataset.
// Tokens are matched against the normalized filename (lowercased, with
// separators collapsed to single spaces).
type Rule struct {
	Dataset core.Dataset
	Tokens  []string
}

// Router is an ordered rule table. First matching rule wins.
type Router struct {
	rules []Rule
}

// ErrNoRoute is returned when no rule matches the filename.
var ErrNoRoute = errors.New("filename matches no dataset")

// DefaultRules covers the dataset kinds of the legacy import scripts.
// Order matters: more specific token sets come first.
func DefaultRules() []Rule {
	return []Rule{
		{Dataset: "transactions", Tokens: []string{"transaction", "txn", "payment", "invoice", "sales"}},
		{Dataset: "customers", Tokens: []string{"customer", "client", "contact", "account"}},
		{Dataset: "inventory", Tokens: []string{"inventory", "stock", "item", "product", "sku"}},
	}
}

// New builds a router from an ordered rule list.
func New(rules []Rule) *Router {
	return &Router{rules: rules}
}

// NewDefault builds a router with the built-in rules, optionally extended
// with extra tokens per dataset (from configuration).
func NewDefault(extraTokens map[core.Dataset][]string) *Router {
	rules := DefaultRules()
	for i := range rules {
		if extra, ok := extraTokens[rules[i].Dataset]; ok {
			rules[i].Tokens = append(rules[i].Tokens, extra...)
		}
	}
	return New(rules)
}

// ParseExtraTokens parses the ROUTER_EXTRA_TOKENS environment value,
// "dataset=token,token;dataset=token". Tokens are lowercased to match the
// normalized filenames Route compares against. An empty value is fine.
func ParseExtraTokens(spec string) (map[core.Dataset][]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	known := map[core.Dataset]struct{}{}
	for _, rule := range DefaultRules() {
		known[rule.Dataset] = struct{}{}
	}

	out := make(map[core.Dataset][]string)
	for _, entry := range strings.Split(spec, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, tokenList, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("extra tokens entry %q: want dataset=token,token", entry)
		}
		dataset := core.Dataset(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := known[dataset]; !ok {
			return nil, fmt.Errorf("extra tokens entry %q: unknown dataset %q", entry, dataset)
		}
		var tokens []string
		for _, token := range strings.Split(tokenList, ",") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token != "" {
				tokens = append(tokens, token)
			}
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("extra tokens entry %q: no tokens", entry)
		}
		out[dataset] = append(out[dataset], tokens...)
	}
	return out, nil
}

// Route maps a filename to its dataset.
func (r *Router) Route(filename string) (core.Dataset, error) {
	name := normalizeFilename(filename)
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrNoRoute)
	}
	for _, rule := range r.rules {
		for _, token := range rule.Tokens {
			if strings.Contains(name, token) {
				return rule.Dataset, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q (known datasets: %s)", ErrNoRoute, filename, strings.Join(r.datasetNames(), ", "))
}

// Datasets returns the datasets this router can route to, sorted.
func (r *Router) Datasets() []core.Dataset {
	names := r.datasetNames()
	out := make([]core.Dataset, len(names))
	for i, n := range names {
		out[i] = core.Dataset(n)
	}
	return out
}

func (r *Router) datasetNames() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, rule := range r.rules {
		if _, ok := seen[string(rule.Dataset)]; ok {
			continue
		}
		seen[string(rule.Dataset)] = struct{}{}
		names = append(names, string(rule.Dataset))
	}
	sort.Strings(names)
	return names
}

// normalizeFilename lowercases the base name, drops the extension, and
// collapses separators so "Q3_Customer-List.csv" becomes "q3 customer list".
func normalizeFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)
	replacer := strings.NewReplacer("_", " ", "-", " ", ".", " ", "(", " ", ")", " ")
	return strings.Join(strings.Fields(replacer.Replace(base)), " ")
}
