package manager

import (
	"github.com/agentmux/agentmux/internal/agent"
)

// commandSpec is the per-kind launch template: the program plus an argument
// builder that substitutes the prompt and maps mode/effort to CLI flags.
// Adding a kind means adding a row here and a normalizer in normalize.
type commandSpec struct {
	program string
	args    func(prompt string, mode agent.Mode, effort agent.Effort) []string
}

var commandSpecs = map[agent.Kind]commandSpec{
	agent.KindClaude: {
		program: "claude",
		args: func(prompt string, mode agent.Mode, effort agent.Effort) []string {
			args := []string{"-p", "--verbose", "--output-format", "stream-json"}
			switch mode {
			case agent.ModePlan:
				args = append(args, "--permission-mode", "plan")
			case agent.ModeEdit:
				args = append(args, "--permission-mode", "acceptEdits")
			case agent.ModeRalph:
				args = append(args, "--dangerously-skip-permissions")
			}
			// The claude CLI has no reasoning-effort flag; effort stays advisory.
			return append(args, prompt)
		},
	},
	agent.KindCodex: {
		program: "codex",
		args: func(prompt string, mode agent.Mode, effort agent.Effort) []string {
			args := []string{"exec", "--json", "--skip-git-repo-check"}
			switch mode {
			case agent.ModePlan:
				args = append(args, "--sandbox", "read-only")
			case agent.ModeEdit:
				args = append(args, "--full-auto")
			case agent.ModeRalph:
				args = append(args, "--dangerously-bypass-approvals-and-sandbox")
			}
			switch effort {
			case agent.EffortFast:
				args = append(args, "-c", "model_reasoning_effort=low")
			case agent.EffortDetailed:
				args = append(args, "-c", "model_reasoning_effort=high")
			}
			return append(args, prompt)
		},
	},
	agent.KindGemini: {
		program: "gemini",
		args: func(prompt string, mode agent.Mode, effort agent.Effort) []string {
			args := []string{"--output-format", "stream-json"}
			switch mode {
			case agent.ModePlan:
				args = append(args, "--approval-mode", "plan")
			case agent.ModeEdit:
				args = append(args, "--approval-mode", "auto_edit")
			case agent.ModeRalph:
				args = append(args, "--approval-mode", "yolo")
			}
			return append(args, "-p", prompt)
		},
	},
	agent.KindCursor: {
		program: "cursor-agent",
		args: func(prompt string, mode agent.Mode, effort agent.Effort) []string {
			args := []string{"-p", "--output-format", "stream-json"}
			if mode == agent.ModeRalph {
				args = append(args, "--force")
			}
			return append(args, prompt)
		},
	},
	agent.KindOpencode: {
		program: "opencode",
		args: func(prompt string, mode agent.Mode, effort agent.Effort) []string {
			args := []string{"run", "--print-logs"}
			return append(args, prompt)
		},
	},
}

// buildCommand returns the program and argument vector for one spawn.
func buildCommand(kind agent.Kind, prompt string, mode agent.Mode, effort agent.Effort) (string, []string) {
	spec := commandSpecs[kind]
	return spec.program, spec.args(prompt, mode, effort)
}

// programFor returns the kind's executable name, used by the recovery probe
// to check a pid still runs the expected program.
func programFor(kind agent.Kind) string {
	return commandSpecs[kind].program
}
