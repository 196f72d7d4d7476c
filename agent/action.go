package agent

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Action is the canonical outcome of one agent turn. Exactly one of the
// three variants is produced per turn.
type Action interface {
	isAction()
}

// Respond carries a plain reply that keeps the conversation going.
type Respond struct {
	Message string
}

// HandOff delegates the conversation to another agent by name. Message is
// an optional note for the receiving agent (empty means absent).
type HandOff struct {
	Target  string
	Message string
}

// Complete ends the run. Message is the optional final result (empty means
// absent).
type Complete struct {
	Message string
}

func (Respond) isAction()  {}
func (HandOff) isAction()  {}
func (Complete) isAction() {}

var (
	reHandoff = regexp.MustCompile(
		`(?i)\b(?:hand[\s-]*off|handoff|transfer|delegate|connect|route)\b` +
			`(?:[^a-zA-Z0-9@]+(?:to|with)\b)?` +
			`[^a-zA-Z0-9@]*` +
			`(?:agent|assistant|team|specialist|@)?` +
			`\s*([a-zA-Z0-9_.\- ]{1,64})`)

	reComplete = regexp.MustCompile(
		`(?i)\b(?:done|complete|completed|finish(?:ed)?|that'?s all|all set|nothing further)\b`)
)

// ResolveAction turns free-form agent reply text into an Action. Model
// output is unreliable input, so resolution is total: it tries, in strict
// priority order, (1) the whole text as a JSON action envelope, (2) the
// first fenced code block, (3) the last balanced JSON object embedded in
// mixed prose, (4) natural-language handoff/completion phrases, and finally
// (5) falls back to a plain Respond with the trimmed text. It never fails.
func ResolveAction(text string) Action {
	trimmed := strings.TrimSpace(text)

	if action, ok := parseEnvelope(trimmed); ok {
		return action
	}

	for _, block := range fencedBlocks(text) {
		if action, ok := parseEnvelope(block); ok {
			return action
		}
	}

	if candidate, ok := lastEmbeddedObject(text); ok {
		if action, ok := parseEnvelope(candidate); ok {
			return action
		}
	}

	if m := reHandoff.FindStringSubmatch(text); m != nil {
		target := cleanTarget(m[1])
		if target != "" {
			return HandOff{Target: target}
		}
	}

	if reComplete.MatchString(text) {
		return Complete{}
	}

	return Respond{Message: trimmed}
}

// parseEnvelope parses s as a JSON object with an "action" discriminant.
// Synonyms: respond|reply, hand_off|handoff, complete|done. A handoff
// without a usable target is rejected so later tiers can still salvage the
// text.
func parseEnvelope(s string) (Action, bool) {
	if !strings.HasPrefix(s, "{") || !gjson.Valid(s) {
		return nil, false
	}

	doc := gjson.Parse(s)
	if !doc.IsObject() {
		return nil, false
	}

	action := strings.ToLower(strings.TrimSpace(doc.Get("action").String()))

	switch action {
	case "respond", "reply":
		return Respond{Message: strings.TrimSpace(firstField(doc, "message", "response", "text"))}, true
	case "hand_off", "handoff":
		target := cleanTarget(firstField(doc, "target", "to", "target_agent"))
		if target == "" {
			return nil, false
		}
		return HandOff{
			Target:  target,
			Message: strings.TrimSpace(firstField(doc, "message", "note", "reason")),
		}, true
	case "complete", "done":
		return Complete{Message: strings.TrimSpace(firstField(doc, "message", "note", "reason"))}, true
	default:
		return nil, false
	}
}

// firstField returns the first non-empty string among the named fields.
func firstField(doc gjson.Result, fields ...string) string {
	for _, f := range fields {
		if v := doc.Get(f); v.Exists() {
			if s := v.String(); s != "" {
				return s
			}
		}
	}

	return ""
}

// fencedBlocks returns the bodies of triple-backtick code blocks, in order,
// with any language tag line stripped.
func fencedBlocks(text string) []string {
	var blocks []string

	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}

		rest = rest[start+3:]

		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}

		body := rest[:end]
		rest = rest[end+3:]

		// Drop the language tag (e.g. "json") on the opening fence line.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			tag := strings.TrimSpace(body[:nl])
			if tag != "" && !strings.HasPrefix(tag, "{") {
				body = body[nl+1:]
			}
		}

		body = strings.TrimSpace(body)
		if body != "" {
			blocks = append(blocks, body)
		}
	}

	return blocks
}

// lastEmbeddedObject scans the text for balanced top-level {...} objects
// with a quote/escape-aware brace counter and returns the last one that
// mentions an "action" key.
func lastEmbeddedObject(text string) (string, bool) {
	var candidate string

	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					obj := text[start : i+1]
					if strings.Contains(obj, `"action"`) {
						candidate = obj
					}
					start = -1
				}
			}
		}
	}

	return candidate, candidate != ""
}

// cleanTarget normalizes a handoff target: strips a leading '@', surrounding
// whitespace and trailing sentence punctuation.
func cleanTarget(target string) string {
	target = strings.TrimSpace(target)
	target = strings.TrimPrefix(target, "@")
	target = strings.TrimRight(target, ".!?,;: ")

	return strings.TrimSpace(target)
}
