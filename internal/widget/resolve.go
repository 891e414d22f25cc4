package widget

import (
	"fmt"
	"os"
	"strings"

	"github.com/usagebar/usagebar/internal/core"
)

// EnvToken overrides every stored credential when set. Useful for bars
// running in stripped-down environments without keychain access.
const EnvToken = "CLAUDE_OAUTH_TOKEN"

// TokenReader is the read-only slice of the secret store the widget needs.
type TokenReader interface {
	ClaudeCodeToken() (string, error)
	ManualToken() (string, error)
}

// ResolveToken picks a token for one-shot widget fetches: the environment
// wins, then the preferred source, then the other one. Only the widget
// falls back across sources like this; a status bar segment is better off
// showing data from the wrong source than showing nothing.
func ResolveToken(store TokenReader, preferred core.TokenSource) (token string, origin string, err error) {
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		return tok, "env", nil
	}

	var tried []string
	for _, source := range []core.TokenSource{preferred, preferred.Other()} {
		tok, err := readSource(store, source)
		if err == nil && tok != "" {
			return tok, string(source), nil
		}
		tried = append(tried, string(source))
	}
	return "", "", fmt.Errorf("no usable credential (tried %s)", strings.Join(tried, ", "))
}

func readSource(store TokenReader, source core.TokenSource) (string, error) {
	if source == core.SourceManual {
		return store.ManualToken()
	}
	return store.ClaudeCodeToken()
}
