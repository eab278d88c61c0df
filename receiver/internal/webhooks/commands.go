package webhooks

import (
	"regexp"
	"strings"
)

// Command is something a user can ask for by commenting on a pull request.
type Command string

const (
	CommandTest     Command = "test"
	CommandCoverage Command = "coverage"
)

var commandRegex = regexp.MustCompile(`(?i)(?:^|\s)/patchpanda\s+(test|coverage)\b`)

// parseCommands returns the distinct commands found in a comment body, in the
// order they first appear.
func parseCommands(body string) []Command {
	var commands []Command
	seen := map[Command]bool{}
	for _, match := range commandRegex.FindAllStringSubmatch(body, -1) {
		cmd := Command(strings.ToLower(match[1]))
		if !seen[cmd] {
			seen[cmd] = true
			commands = append(commands, cmd)
		}
	}
	return commands
}
