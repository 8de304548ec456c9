package bot

import (
	"strings"
)

// Intent is what a chat message asks the bot to do.
type Intent string

const (
	IntentRun     Intent = "RUN"
	IntentStatus  Intent = "STATUS"
	IntentUnknown Intent = "UNKNOWN"
)

// Whole-message commands, matched after normalization.
var commands = map[string]Intent{
	"/run":    IntentRun,
	"/verify": IntentRun,
	"run":     IntentRun,
	"verify":  IntentRun,
	"/status": IntentStatus,
	"/report": IntentStatus,
	"status":  IntentStatus,
	"report":  IntentStatus,
	"/start":  IntentUnknown,
	"/help":   IntentUnknown,
	"help":    IntentUnknown,
}

// Phrases matched anywhere in the message, checked in order.
var phrases = []struct {
	phrase string
	intent Intent
}{
	{"run phase 2 test", IntentRun},
	{"run verification", IntentRun},
	{"start verification", IntentRun},
	{"report status", IntentStatus},
	{"verification status", IntentStatus},
	{"latest report", IntentStatus},
}

// Classify maps a chat message to an intent. Matching ignores case and
// repeated whitespace.
func Classify(text string) Intent {
	norm := normalize(text)
	if norm == "" {
		return IntentUnknown
	}
	if intent, ok := commands[stripBotName(norm)]; ok {
		return intent
	}
	for _, p := range phrases {
		if strings.Contains(norm, p.phrase) {
			return p.intent
		}
	}
	return IntentUnknown
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// stripBotName turns "/run@some_bot" into "/run".
func stripBotName(s string) string {
	if !strings.HasPrefix(s, "/") {
		return s
	}
	if i := strings.IndexByte(s, '@'); i > 0 && !strings.Contains(s, " ") {
		return s[:i]
	}
	return s
}

// HelpText lists the messages the bot understands.
func HelpText() string {
	return "Available commands:\n" +
		"'Run verification' or 'Run Phase 2 test' - execute verification\n" +
		"'Report status' or /status - show the latest report\n" +
		"/help - show this message"
}
