package planner

import (
	"fmt"
	"strings"

	"github.com/agentmesh/meshhub/agent"
)

// domainKeywords lists the keyword sets the keyword router scans for, in
// priority order (spec §4.5: "weather, finance, travel, general").
var domainKeywords = []struct {
	domain     string
	capability string
	keywords   []string
}{
	{"weather", "weather.current", []string{"weather", "temperature", "forecast", "rain", "sunny", "snow"}},
	{"finance", "stock.quote", []string{"stock", "price", "shares", "ticker", "market", "nasdaq", "financial_analysis"}},
	{"travel", "travel.plan", []string{"travel", "trip", "flight", "itinerary", "vacation", "hotel"}},
	{"general", "chat.general", []string{}},
}

// keywordRouter is a pure, deterministic function of (normalizedPrompt,
// capability set): the fallback plan path relied on by property tests
// (spec §4.5 "Determinism", scenario S2). The first matching domain set
// yields a single-step plan routed to that domain's capability, provided an
// agent advertises it; otherwise it falls through to the next domain, and
// finally to a general chat step regardless of advertised capabilities.
func keywordRouter(normalizedPrompt string, agents []agent.AgentInfo) *ExecutionPlan {
	available := make(map[string]struct{})
	for _, a := range agents {
		for _, c := range a.Capabilities {
			available[c] = struct{}{}
		}
	}

	for _, d := range domainKeywords {
		if d.domain != "general" && !matchesAny(normalizedPrompt, d.keywords) {
			continue
		}
		if d.domain != "general" {
			if _, ok := available[d.capability]; !ok {
				continue
			}
		}
		return singleStepPlan(d.domain, d.capability, normalizedPrompt)
	}

	return singleStepPlan("general", "chat.general", normalizedPrompt)
}

func matchesAny(prompt string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(prompt, k) {
			return true
		}
	}
	return false
}

func singleStepPlan(domain, capability, normalizedPrompt string) *ExecutionPlan {
	return &ExecutionPlan{
		Steps: []TaskStep{
			{
				ID:             "step-1",
				Capability:     capability,
				Description:    normalizedPrompt,
				Parameters:     map[string]any{"prompt": normalizedPrompt},
				Priority:       5,
				CanParallelize: false,
			},
		},
		Dependencies:      map[string][]string{},
		Reasoning:         fmt.Sprintf("keyword router matched domain %q", domain),
		Confidence:        0.6,
		SynthesisStrategy: "direct",
	}
}
