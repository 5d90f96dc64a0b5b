// Package guard implements the destructive-operation two-step authorization
// protocol used by clear_graph: a short, per-process random code that must
// be echoed back (with a fixed suffix) to actually clear a namespace, and
// that rotates on every failed or successful attempt.
//
// No library in this lineage covers one-shot rotating confirmation codes,
// so this is built on crypto/rand directly (justified in DESIGN.md: no
// third-party dependency in the corpus fits this narrow a concern).
package guard

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// Suffix is appended to the current code to form a valid auth string.
const Suffix = "_DELETE_THIS_GRAPH"

// codeBytes controls the rotated code's length: 8 bytes -> 16 hex chars,
// short enough to read aloud, long enough to resist guessing within a
// session.
const codeBytes = 8

// Token is the shared, atomically-rotated destructive-operation code.
// Safe for concurrent use by multiple dispatcher goroutines.
type Token struct {
	mu   sync.Mutex
	code string
}

// NewToken mints a Token with a freshly generated code.
func NewToken() *Token {
	t := &Token{}
	t.rotate()
	return t
}

// Current returns the presently valid code, without rotating it.
func (t *Token) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code
}

// Check validates auth against the current code plus Suffix. Regardless of
// outcome, the code rotates immediately afterward — success rotates so a
// leaked/observed code from this session can't be replayed, and failure
// rotates to block brute-force. The new code is always returned.
func (t *Token) Check(auth string) (ok bool, newCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ok = auth != "" && auth == t.code+Suffix
	t.rotate()
	return ok, t.code
}

func (t *Token) rotate() {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is catastrophic for the host; there is no
		// sane fallback that preserves the guard's security property.
		panic("guard: crypto/rand unavailable: " + err.Error())
	}
	t.code = hex.EncodeToString(buf)
}
