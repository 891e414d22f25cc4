package keyring

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/usagebar/usagebar/internal/core"
)

// Claude Code stores its credentials as a JSON document:
//
//	{"claudeAiOauth":{"accessToken":"sk-ant-oat01-…","refreshToken":…}}
//
// Depending on how the blob was written it can carry embedded NUL bytes or a
// truncated tail, so extraction must not depend on the document decoding as
// a whole.
var accessTokenPattern = regexp.MustCompile(`"accessToken"\s*:\s*"([^"\\]*)`)

const tokenPrefix = "sk-ant-"

// ExtractAccessToken pulls the access token out of a Claude Code credential
// blob, tolerating corruption around the field we need. The extracted value
// is validated before being accepted.
func ExtractAccessToken(blob string) (string, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(blob, "\x00", ""))
	if cleaned == "" {
		return "", core.InvalidDataError("credential payload is empty")
	}

	token := gjson.Get(cleaned, "claudeAiOauth.accessToken").String()
	if token == "" {
		// gjson gives up on some malformed documents; a field scan still
		// finds the token when the damage is elsewhere in the payload.
		if m := accessTokenPattern.FindStringSubmatch(cleaned); m != nil {
			token = m[1]
		}
	}

	if token == "" {
		return "", core.InvalidDataError("accessToken not found in credential payload")
	}
	if !strings.HasPrefix(token, tokenPrefix) {
		return "", core.InvalidDataError("access token does not start with " + tokenPrefix)
	}
	if len(token) < len(tokenPrefix)+8 || strings.ContainsAny(token, " \t\r\n") {
		return "", core.InvalidDataError("access token has an implausible shape")
	}
	return token, nil
}
