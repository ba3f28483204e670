package domain

import (
	"slices"
	"strings"
)

// AgentName identifies one agent from the fixed catalog. Values are always
// uppercase; use ParseAgentName to obtain one from user input.
type AgentName string

// Production agents.
const (
	AgentAlex   AgentName = "ALEX"
	AgentEmma   AgentName = "EMMA"
	AgentJim    AgentName = "JIM"
	AgentLuna   AgentName = "LUNA"
	AgentMax    AgentName = "MAX"
	AgentNova   AgentName = "NOVA"
	AgentOliver AgentName = "OLIVER"
	AgentSophia AgentName = "SOPHIA"
)

// TestAgentPrefix marks the test variant namespace of the catalog.
const TestAgentPrefix = "TEST_"

// Test variants, used by QA environments.
const (
	AgentTestAlex AgentName = TestAgentPrefix + "ALEX"
	AgentTestJim  AgentName = TestAgentPrefix + "JIM"
	AgentTestNova AgentName = TestAgentPrefix + "NOVA"
)

var agentCatalog = []AgentName{
	AgentAlex,
	AgentEmma,
	AgentJim,
	AgentLuna,
	AgentMax,
	AgentNova,
	AgentOliver,
	AgentSophia,
	AgentTestAlex,
	AgentTestJim,
	AgentTestNova,
}

// AgentCatalog returns every known agent in catalog order.
func AgentCatalog() []AgentName {
	return slices.Clone(agentCatalog)
}

// AgentCatalogStrings returns the catalog as plain strings, for error messages.
func AgentCatalogStrings() []string {
	names := make([]string, len(agentCatalog))
	for i, a := range agentCatalog {
		names[i] = string(a)
	}
	return names
}

// ParseAgentName normalizes s to uppercase and reports whether it names a
// catalog agent.
func ParseAgentName(s string) (AgentName, bool) {
	name := AgentName(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(agentCatalog, name) {
		return "", false
	}
	return name, true
}

// IsTest reports whether the agent belongs to the test variant namespace.
func (a AgentName) IsTest() bool {
	return strings.HasPrefix(string(a), TestAgentPrefix)
}

// UniqueAgentNames removes duplicates while keeping first-seen order.
func UniqueAgentNames(names []AgentName) []AgentName {
	seen := make(map[AgentName]struct{}, len(names))
	out := make([]AgentName, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
