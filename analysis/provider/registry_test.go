package provider

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

func TestDetect_DefaultRules(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"sk-ant-api03-abc": NameAnthropic,
		"sk-proj-abc":      NameOpenAI,
		"  sk-abc  ":       NameOpenAI,
		"AIzaSyD-abc":      NameGemini,
		"xai-abc":          "",
		"":                 "",
	}
	for cred, want := range cases {
		r, ok := Detect(DefaultRules, cred)
		if want == "" {
			if ok {
				t.Fatalf("Detect(%q)=%s, want no match", cred, r.Name)
			}
			continue
		}
		if !ok || r.Name != want {
			t.Fatalf("Detect(%q)=%q ok=%v, want %q", cred, r.Name, ok, want)
		}
	}
}

type stubProvider struct {
	name string
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Complete(context.Context, CompletionRequest) (string, error) { return "{}", nil }

func TestSelect_FirstMatchingCredentialWins(t *testing.T) {
	t.Parallel()

	var got []string
	rule := func(name, pattern string) Rule {
		return Rule{Name: name, Pattern: regexp.MustCompile(pattern), New: func(c string, _ Options) (Provider, error) {
			got = append(got, c)
			return stubProvider{name: name}, nil
		}}
	}
	rules := []Rule{rule("a", `^a-`), rule("b", `^b-`)}

	p, err := Select(rules, []string{"junk", " b-1 ", "a-1"}, Options{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if p.Name() != "b" {
		t.Fatalf("Name=%q, want b", p.Name())
	}
	if len(got) != 1 || got[0] != "b-1" {
		t.Fatalf("constructed with %v, want [b-1]", got)
	}
}

func TestSelect_NoCredential(t *testing.T) {
	t.Parallel()

	if _, err := Select(DefaultRules, []string{"", "nope"}, Options{}); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err=%v, want ErrNoCredential", err)
	}
}

func TestOptions_ModelAndBaseURL(t *testing.T) {
	t.Parallel()

	o := Options{Models: map[string]string{NameOpenAI: " gpt-4.1 "}, BaseURLs: map[string]string{NameAnthropic: "http://x"}}
	if got := o.model(NameOpenAI, "d"); got != "gpt-4.1" {
		t.Fatalf("model=%q", got)
	}
	if got := o.model(NameGemini, "d"); got != "d" {
		t.Fatalf("model=%q, want default", got)
	}
	if got := o.baseURL(NameAnthropic); got != "http://x" {
		t.Fatalf("baseURL=%q", got)
	}
}
