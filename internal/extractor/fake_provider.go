package extractor

import (
	"context"
	"fmt"
	"strings"
)

// FakeProvider is a deterministic stand-in for AnthropicProvider, grounded on
// the teacher's MockProvider: it keys its canned response off substrings of
// the prompt rather than calling any network service, so extraction logic
// can be exercised in tests without credentials.
type FakeProvider struct {
	Available bool
	// Script, when non-nil, is consulted before the built-in canned
	// response: an entry whose key is contained in the prompt wins. Entries
	// are tried in map order, so when several keys match, which one wins is
	// not defined.
	Script map[string]string
	// Err, when set, is returned by every call instead of a response.
	Err error
}

// NewFakeProvider returns an available FakeProvider with no script.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Available: true}
}

func (p *FakeProvider) IsAvailable() bool {
	return p.Available
}

func (p *FakeProvider) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if p.Err != nil {
		return "", p.Err
	}
	for key, resp := range p.Script {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return fmt.Sprintf(`{"entities":[],"edges":[]}`), nil
}
