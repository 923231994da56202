// Package protocol is the line protocol spoken by the bridge: one command per
// input line, one JSON message per output line.
package protocol

import "strings"

// Command is one parsed input line.
type Command struct {
	ID   string
	Name string
	Args []string // whitespace-separated tokens after the name
	Rest string   // everything after the name, trimmed
}

// ParseCommand splits "<id> <command> [args...]". The second result is false
// when the id or the command name is missing; such lines are ignored.
func ParseCommand(line string) (Command, bool) {
	id, rest := cutToken(line)
	name, rest := cutToken(rest)
	if id == "" || name == "" {
		return Command{}, false
	}
	rest = strings.TrimSpace(rest)
	return Command{
		ID:   id,
		Name: name,
		Args: strings.Fields(rest),
		Rest: rest,
	}, true
}

func cutToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t\r\n\v\f")
	i := strings.IndexAny(s, " \t\r\n\v\f")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// Line formats a command the way ParseCommand reads it.
func Line(id, name string, args ...string) string {
	var b strings.Builder
	b.WriteString(id)
	b.WriteByte(' ')
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}
