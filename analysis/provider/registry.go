package provider

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Options configure adapters built from the rule table.
type Options struct {
	// Models overrides the default model per provider name.
	Models map[string]string

	// BaseURLs overrides the API endpoint per provider name (tests, proxies).
	BaseURLs map[string]string

	HTTPClient *http.Client
}

func (o Options) model(name, def string) string {
	if m := strings.TrimSpace(o.Models[name]); m != "" {
		return m
	}
	return def
}

func (o Options) baseURL(name string) string {
	return strings.TrimSpace(o.BaseURLs[name])
}

// Rule maps a credential shape to an adapter constructor. Order matters: the first match wins.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	New     func(credential string, opts Options) (Provider, error)
}

// DefaultRules is the credential-shape strategy table. Adding a provider is adding a row.
var DefaultRules = []Rule{
	{Name: NameAnthropic, Pattern: regexp.MustCompile(`^sk-ant-`), New: newAnthropicFromRule},
	{Name: NameOpenAI, Pattern: regexp.MustCompile(`^sk-`), New: newOpenAIFromRule},
	{Name: NameGemini, Pattern: regexp.MustCompile(`^AIza`), New: newGeminiFromRule},
}

// Detect returns the rule whose pattern matches credential.
func Detect(rules []Rule, credential string) (Rule, bool) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Rule{}, false
	}
	for _, r := range rules {
		if r.Pattern.MatchString(credential) {
			return r, true
		}
	}
	return Rule{}, false
}

// Select builds a provider from the first credential that matches a rule.
func Select(rules []Rule, credentials []string, opts Options) (Provider, error) {
	for _, c := range credentials {
		r, ok := Detect(rules, c)
		if !ok {
			continue
		}
		p, err := r.New(strings.TrimSpace(c), opts)
		if err != nil {
			return nil, fmt.Errorf("Select: build %s: %w", r.Name, err)
		}
		return p, nil
	}
	return nil, ErrNoCredential
}
