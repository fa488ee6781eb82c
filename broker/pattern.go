package broker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentmesh/meshhub/errtax"
)

var patternSegmentRE = regexp.MustCompile(`^([A-Za-z0-9_-]+|\*|\*\*)$`)

// validatePattern enforces the wildcard grammar of spec §3: segments are
// either literal [A-Za-z0-9_-]+, a single-segment "*", or a terminal "**"
// that may only appear as the pattern's last segment.
func validatePattern(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("broker: %w: empty pattern", errtax.ErrInvalidPattern)
	}
	segments := strings.Split(pattern, ".")
	for i, seg := range segments {
		if !patternSegmentRE.MatchString(seg) {
			return nil, fmt.Errorf("broker: %w: invalid segment %q in pattern %q", errtax.ErrInvalidPattern, seg, pattern)
		}
		if seg == "**" && i != len(segments)-1 {
			return nil, fmt.Errorf("broker: %w: \"**\" must be terminal, pattern %q", errtax.ErrInvalidPattern, pattern)
		}
	}
	return segments, nil
}

// trieNode is one segment position in the subscription trie. Literal
// children are keyed by exact segment text; star and doubleStar are the
// distinguished wildcard children described in SPEC_FULL.md §4.1.
type trieNode struct {
	children   map[string]*trieNode
	star       *trieNode
	doubleStar *trieNode
	subs       map[subKey]HandlerFunc
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

type subKey struct {
	agentID string
	pattern string
}

// subscriptionTrie indexes every live (agentID, pattern) subscription so
// that publish-side matching is O(segments) regardless of subscriber count.
type subscriptionTrie struct {
	root *trieNode
}

func newSubscriptionTrie() *subscriptionTrie {
	return &subscriptionTrie{root: newTrieNode()}
}

// insert adds a subscription, returning false if (agentID, pattern) was
// already present (subscribe is idempotent per spec §4.1).
func (t *subscriptionTrie) insert(agentID, pattern string, handler HandlerFunc) (bool, error) {
	segments, err := validatePattern(pattern)
	if err != nil {
		return false, err
	}

	cur := t.root
	for _, seg := range segments {
		switch seg {
		case "**":
			if cur.doubleStar == nil {
				cur.doubleStar = newTrieNode()
			}
			cur = cur.doubleStar
		case "*":
			if cur.star == nil {
				cur.star = newTrieNode()
			}
			cur = cur.star
		default:
			child, ok := cur.children[seg]
			if !ok {
				child = newTrieNode()
				cur.children[seg] = child
			}
			cur = child
		}
	}

	if cur.subs == nil {
		cur.subs = make(map[subKey]HandlerFunc)
	}
	key := subKey{agentID: agentID, pattern: pattern}
	if _, exists := cur.subs[key]; exists {
		return false, nil
	}
	cur.subs[key] = handler
	return true, nil
}

// remove deletes a subscription, a no-op if it was not present.
func (t *subscriptionTrie) remove(agentID, pattern string) {
	segments, err := validatePattern(pattern)
	if err != nil {
		return
	}
	cur := t.root
	for _, seg := range segments {
		switch seg {
		case "**":
			if cur.doubleStar == nil {
				return
			}
			cur = cur.doubleStar
		case "*":
			if cur.star == nil {
				return
			}
			cur = cur.star
		default:
			child, ok := cur.children[seg]
			if !ok {
				return
			}
			cur = child
		}
	}
	delete(cur.subs, subKey{agentID: agentID, pattern: pattern})
}

// match walks topic against the trie and returns every matching subscription.
func (t *subscriptionTrie) match(topic string) map[subKey]HandlerFunc {
	segments := strings.Split(topic, ".")
	out := make(map[subKey]HandlerFunc)
	matchNode(t.root, segments, out)
	return out
}

// Match reports whether topic matches pattern under the wildcard grammar of
// spec §3 ("*" one segment, terminal "**" zero-or-more trailing segments).
// Exported so agent-level route tables (SPEC_FULL.md §9 "route table"
// design note) can reuse the same matcher the broker's trie implements,
// without needing a live Broker.
func Match(pattern, topic string) (bool, error) {
	segments, err := validatePattern(pattern)
	if err != nil {
		return false, err
	}
	t := newSubscriptionTrie()
	t.root = newTrieNode()
	cur := t.root
	for _, seg := range segments {
		switch seg {
		case "**":
			cur.doubleStar = newTrieNode()
			cur = cur.doubleStar
		case "*":
			cur.star = newTrieNode()
			cur = cur.star
		default:
			child := newTrieNode()
			cur.children[seg] = child
			cur = child
		}
	}
	cur.subs = map[subKey]HandlerFunc{{agentID: "_", pattern: pattern}: nil}

	out := t.match(topic)
	_, ok := out[subKey{agentID: "_", pattern: pattern}]
	return ok, nil
}

func matchNode(n *trieNode, segments []string, out map[subKey]HandlerFunc) {
	if n == nil {
		return
	}
	// "**" matches zero-or-more trailing segments from this point on,
	// regardless of how many (including zero) remain.
	if n.doubleStar != nil {
		for k, h := range n.doubleStar.subs {
			out[k] = h
		}
	}
	if len(segments) == 0 {
		for k, h := range n.subs {
			out[k] = h
		}
		return
	}
	head, rest := segments[0], segments[1:]
	if child, ok := n.children[head]; ok {
		matchNode(child, rest, out)
	}
	if n.star != nil {
		matchNode(n.star, rest, out)
	}
}
