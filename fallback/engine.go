// Package fallback implements the rule-based fallback engine of spec §4.9:
// a best-effort answer source for when the LLM is unavailable, slow, or
// returns a malformed plan, scored against rules derived from prior
// successful LLM turns plus a seeded catalogue.
package fallback

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentmesh/meshhub/errtax"
	"github.com/agentmesh/meshhub/normalize"
)

// Config carries the tunables of spec §6 / §4.9.
type Config struct {
	MinConfidence float64 // default 70
	MaxRules      int     // default 100
}

func (c Config) withDefaults() Config {
	if c.MinConfidence == 0 {
		c.MinConfidence = 70
	}
	if c.MaxRules == 0 {
		c.MaxRules = 100
	}
	return c
}

// Engine scores prompts against a rule set and serves the highest-scoring
// template, learning new rules from successful LLM completions.
type Engine struct {
	cfg    Config
	store  *RuleStore
	logger *slog.Logger

	mu    sync.RWMutex
	rules map[string]*Rule
}

// New builds an Engine backed by store, seeding the catalogue on first run.
func New(cfg Config, store *RuleStore, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		store:  store,
		logger: logger,
		rules:  make(map[string]*Rule),
	}

	loaded, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, r := range loaded {
		e.rules[r.ID] = r
	}
	if len(e.rules) == 0 {
		for _, seed := range seedRules() {
			e.rules[seed.ID] = seed
			if err := store.Save(seed); err != nil {
				return nil, err
			}
		}
		logger.Info("fallback: seeded catalogue", "rules", len(e.rules))
	}
	return e, nil
}

// Match scores prompt against every rule and returns the interpolated
// response template of the winning rule, or errtax.ErrRuleMatchMiss if no
// rule clears the confidence threshold (spec §4.9 "returns None").
func (e *Engine) Match(prompt string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var best *Rule
	var bestScore float64
	for _, r := range e.rules {
		score := scoreRule(r, prompt)
		if score < e.cfg.MinConfidence || r.Confidence < e.cfg.MinConfidence {
			continue
		}
		if best == nil || isBetter(r, score, best, bestScore) {
			best, bestScore = r, score
		}
	}
	if best == nil {
		return "", fmt.Errorf("fallback: %w", errtax.ErrRuleMatchMiss)
	}

	template := best.Templates[int(best.UsageCount)%len(best.Templates)]
	best.UsageCount++
	if err := e.store.Save(best); err != nil {
		e.logger.Warn("fallback: persist rule usage failed", "rule", best.ID, "error", err)
	}
	return interpolate(template, prompt, best.Category), nil
}

func isBetter(candidate *Rule, candidateScore float64, current *Rule, currentScore float64) bool {
	if candidateScore != currentScore {
		return candidateScore > currentScore
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	if candidate.UsageCount != current.UsageCount {
		return candidate.UsageCount > current.UsageCount
	}
	return candidate.ID < current.ID
}

func scoreRule(r *Rule, prompt string) float64 {
	keywords := normalize.Keywords(prompt, 50)
	keywordSet := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		keywordSet[k] = struct{}{}
	}

	matchedKeywords := 0
	for _, k := range r.Keywords {
		if _, ok := keywordSet[k]; ok {
			matchedKeywords++
		}
	}
	var keywordScore float64
	if len(r.Keywords) > 0 {
		keywordScore = 40 * float64(matchedKeywords) / float64(len(r.Keywords))
	}

	matchedPatterns := 0
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(prompt) {
			matchedPatterns++
		}
	}
	var patternScore float64
	if len(r.Patterns) > 0 {
		patternScore = 60 * float64(matchedPatterns) / float64(len(r.Patterns))
	}

	score := keywordScore + patternScore
	if score > 100 {
		score = 100
	}
	return score
}

func interpolate(template, prompt, category string) string {
	out := strings.ReplaceAll(template, "{prompt}", prompt)
	out = strings.ReplaceAll(out, "{category}", category)
	out = strings.ReplaceAll(out, "{timestamp}", time.Now().UTC().Format(time.RFC3339))
	return out
}

var (
	questionRE    = regexp.MustCompile(`\?\s*$`)
	politeRE      = regexp.MustCompile(`(?i)^(please|could you|can you|would you)\b`)
	codeKeywordRE = regexp.MustCompile(`(?i)\b(code|function|bug|error|compile|variable|exception)\b`)
)

var categoryKeywords = map[string][]string{
	"coding":       {"code", "function", "bug", "error", "compile", "program", "variable"},
	"explanation":  {"explain", "why", "how", "meaning", "definition"},
	"assistance":   {"help", "assist", "support", "please"},
	"question":     {"what", "when", "where", "who", "which"},
}

func categorize(keywords []string) string {
	best := "general"
	bestCount := 0
	for category, set := range categoryKeywords {
		count := 0
		for _, k := range keywords {
			for _, c := range set {
				if k == c {
					count++
				}
			}
		}
		if count > bestCount {
			best, bestCount = category, count
		}
	}
	return best
}

func detectPatterns(prompt string) []string {
	var patterns []string
	if questionRE.MatchString(prompt) {
		patterns = append(patterns, questionRE.String())
	}
	if politeRE.MatchString(prompt) {
		patterns = append(patterns, politeRE.String())
	}
	if codeKeywordRE.MatchString(prompt) {
		patterns = append(patterns, codeKeywordRE.String())
	}
	return patterns
}

// Learn extracts keywords and patterns from a successful LLM turn and
// folds them into a rule, creating one if needed (spec §4.9 "Learning").
// A prompt yielding fewer than two keywords is not learned from.
func (e *Engine) Learn(prompt, response string) {
	keywords := normalize.Keywords(prompt, 10)
	if len(keywords) < 2 {
		return
	}
	category := categorize(keywords)
	patterns := detectPatterns(prompt)
	id := ruleID(category, keywords)

	e.mu.Lock()
	defer e.mu.Unlock()

	rule, exists := e.rules[id]
	if !exists {
		if len(e.rules) >= e.cfg.MaxRules {
			e.logger.Debug("fallback: rule catalogue at capacity, skipping learn", "max", e.cfg.MaxRules)
			return
		}
		rule = &Rule{
			ID:         id,
			Keywords:   keywords,
			Patterns:   patterns,
			Category:   category,
			Confidence: 75,
			CreatedAt:  time.Now().UTC(),
		}
		e.rules[id] = rule
	}
	rule.Templates = appendDedup(rule.Templates, response)

	if err := e.store.Save(rule); err != nil {
		e.logger.Warn("fallback: persist learned rule failed", "rule", id, "error", err)
	}
}

func appendDedup(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// GC removes rules with UsageCount == 0 older than the staleness window
// (spec §4.9 "Eviction").
func (e *Engine) GC(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, r := range e.rules {
		if r.isStale(now) {
			delete(e.rules, id)
			if err := e.store.Delete(id); err != nil {
				e.logger.Warn("fallback: gc delete failed", "rule", id, "error", err)
				continue
			}
			removed++
		}
	}
	return removed
}

// Rules returns a snapshot of the current catalogue, sorted by ID, for
// diagnostics and tests.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func seedRules() []*Rule {
	now := time.Now().UTC()
	weatherKeywords := []string{"weather", "temperature", "forecast", "rain", "tomorrow"}
	generalKeywords := []string{"help", "assist", "question"}
	return []*Rule{
		{
			ID:         ruleID("weather", weatherKeywords),
			Keywords:   weatherKeywords,
			Patterns:   []string{questionRE.String()},
			Templates:  []string{"I can't reach live weather data right now, but you can check a forecast provider for {prompt}."},
			Category:   "weather",
			Confidence: 80,
			CreatedAt:  now,
		},
		{
			ID:         ruleID("general", generalKeywords),
			Keywords:   generalKeywords,
			Patterns:   nil,
			Templates:  []string{"I'm running in a reduced-capability mode right now, but I'll do my best: {prompt}"},
			Category:   "general",
			Confidence: 75,
			CreatedAt:  now,
		},
	}
}
