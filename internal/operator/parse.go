package operator

import "strings"

// Usage strings returned verbatim when an operator command is malformed.
// Malformed commands perform no state change.
const (
	usageBan     = "Usage: /ban <id|@handle>"
	usageUnban   = "Usage: /unban <id|@handle>"
	usageClear   = "Usage: /clear <id|@handle>"
	usageHistory = "Usage: /history <id|@handle>"
	usagePayment = "Usage: /payment <id|@handle> <link or text>"
	usageReply   = "Usage: /reply <id|@handle> <message>"
	usagePhoto   = "Usage: /photo <stored photo ref>"
)

// directive is an operator command parsed into typed arguments. Target is
// never empty; Rest holds the remainder and may be empty when the directive
// takes only a target.
type directive struct {
	Target string
	Rest   string
}

// parseDirective splits a command payload into target and rest. needRest
// demands a non-empty remainder. On malformed input it returns the usage
// string to send back.
func parseDirective(payload string, needRest bool, usage string) (directive, string) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return directive{}, usage
	}
	d := directive{Target: fields[0]}
	if len(fields) > 1 {
		rest := strings.TrimSpace(payload)
		rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
		d.Rest = rest
	}
	if needRest && d.Rest == "" {
		return directive{}, usage
	}
	return d, ""
}
