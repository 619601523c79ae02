package bridge

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var actionBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractAction pulls the first ```json fenced block out of a model reply.
//
// When the block holds a JSON object, the object is returned together with
// the reply minus that block, trimmed. A reply without a block comes back
// trimmed with ok=false. A block that is not a valid JSON object leaves the
// reply exactly as it was received.
func ExtractAction(text string) (rest string, action json.RawMessage, ok bool) {
	loc := actionBlock.FindStringSubmatchIndex(text)
	if loc == nil {
		return strings.TrimSpace(text), nil, false
	}
	body := []byte(text[loc[2]:loc[3]])
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || probe == nil {
		return text, nil, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return text, nil, false
	}
	rest = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return rest, json.RawMessage(compact.Bytes()), true
}
