package prompt

import (
	"fmt"
	"strings"
)

// AutonomousSpec describes a goal-driven agent that answers with a command
// instead of talking to a user.
type AutonomousSpec struct {
	Role        string
	Goals       []string
	Constraints []string
	Commands    []string
	Evaluations []string
}

// Param names a command argument or output field.
type Param struct {
	Name        string
	Description string
}

// CommandSpec documents one command the autonomous agent may issue.
type CommandSpec struct {
	Name        string
	Description string
	Args        []Param
	Output      []Param
}

// StandardRole expands a short role statement with the usual autonomy rules.
func StandardRole(role string) string {
	return role + ". Your decisions must always be made independently without seeking user assistance. " +
		"Play to your strengths as an LLM and pursue simple strategies with no legal complications. " +
		"You can use the commands provided to help you make decisions."
}

// Goal formats a named goal.
func Goal(name, description string) string {
	return fmt.Sprintf("[%s] %s", name, description)
}

// Command formats a command description for the COMMANDS section.
func Command(c CommandSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", c.Name, c.Description)
	for _, a := range c.Args {
		fmt.Fprintf(&b, "\n  - %s: %s", a.Name, a.Description)
	}
	if len(c.Output) > 0 {
		outs := make([]string, len(c.Output))
		for i, o := range c.Output {
			outs[i] = fmt.Sprintf("%s (%s)", o.Name, o.Description)
		}
		fmt.Fprintf(&b, "\n  - Output: %s", strings.Join(outs, ", "))
	}
	return b.String()
}

const autonomousContract = `You should only respond in JSON format as described below
Response Format:
{
    "thoughts": {
        "text": "thought",
        "reasoning": "reasoning",
        "plan": "- short bulleted\n- list that conveys\n- long-term plan",
        "criticism": "constructive self-criticism",
        "speak": "thoughts summary to say to user"
    },
    "command": {"name": "command name", "args": {"arg name": "value"}}
}

Ensure the response can be parsed as JSON and that the response is valid JSON.
`

// Autonomous renders the goal-driven agent prompt. Empty sections are
// omitted.
func Autonomous(s AutonomousSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", s.Role)
	section(&b, "GOALS:", s.Goals)
	section(&b, "CONSTRAINTS:", s.Constraints)
	section(&b, "COMMANDS:", s.Commands)
	section(&b, "Performance Evaluation:", s.Evaluations)
	b.WriteString("\n")
	b.WriteString(autonomousContract)
	return b.String()
}

func section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n- %s\n", title, strings.Join(items, "\n- "))
}

// AutonomousThought is the reply shape requested by Autonomous.
type AutonomousThought struct {
	Thoughts struct {
		Text      string `json:"text"`
		Reasoning string `json:"reasoning"`
		Plan      string `json:"plan"`
		Criticism string `json:"criticism"`
		Speak     string `json:"speak"`
	} `json:"thoughts"`
	Command struct {
		Name string            `json:"name"`
		Args map[string]string `json:"args"`
	} `json:"command"`
}
