package provision

// Built-in agent types and their default provisioning steps, registered at
// package init time the same way the teacher keys node roles and service
// modes off a const enum rather than a plugin registry.
func init() {
	RegisterAgentType(AgentType{
		Name: "claude-code",
		DefaultSteps: []Step{
			{Kind: StepCreateDir, RemotePath: "~/.claude"},
			{Kind: StepApplyEnv, EnvKey: "CLAUDE_CONFIG_DIR", EnvValue: "~/.claude"},
		},
	})
	RegisterAgentType(AgentType{
		Name: "codex",
		DefaultSteps: []Step{
			{Kind: StepCreateDir, RemotePath: "~/.codex"},
		},
	})
	RegisterAgentType(AgentType{
		Name: "shell",
		DefaultSteps: nil,
	})
}
