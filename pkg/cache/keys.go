package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"
	"strings"
)

// Key identifies a cached response.
//
// ID is the exact-match fingerprint. Text and Context are kept so the store
// can compare near-duplicate prompts within the same scope and context.
type Key struct {
	ID      string
	Scope   string
	Text    string
	Context string
}

// String returns the exact-match fingerprint.
func (k Key) String() string { return k.ID }

// NormalizePrompt lowercases, trims and collapses whitespace runs to a single space.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// GenerateKey builds a deterministic key for a prompt within a scope.
// Context entries are hashed in sorted key order, so map iteration order
// does not matter. The scope prefixes the ID, so identical prompts in
// different scopes never collide.
func GenerateKey(scope, prompt string, context map[string]string) Key {
	return generate(scope, prompt, nil, context)
}

// GenerateRouteKey is GenerateKey for an answer bound to a route, such as
// "provider" and "model". Route fields are hashed apart from the caller's
// context, so a context entry can never stand in for one.
func GenerateRouteKey(scope, prompt string, route []string, context map[string]string) Key {
	return generate(scope, prompt, route, context)
}

func generate(scope, prompt string, route []string, context map[string]string) Key {
	normalized := NormalizePrompt(prompt)
	ctxHash := hashContext(route, context)

	h := sha256.New()
	writeField(h, scope)
	writeField(h, normalized)
	writeField(h, ctxHash)

	return Key{
		ID:      scope + ":" + hex.EncodeToString(h.Sum(nil)),
		Scope:   scope,
		Text:    normalized,
		Context: ctxHash,
	}
}

func hashContext(route []string, context map[string]string) string {
	if len(route) == 0 && len(context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	writeField(h, strconv.Itoa(len(route)))
	for _, r := range route {
		writeField(h, r)
	}
	for _, k := range keys {
		writeField(h, k)
		writeField(h, context[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// writeField writes s length-prefixed, so no field content can shift a
// boundary between fields.
func writeField(h hash.Hash, s string) {
	h.Write([]byte(strconv.Itoa(len(s))))
	h.Write([]byte{':'})
	h.Write([]byte(s))
}

// Similarity scores two normalized texts in [0,1]; 1 means identical.
type Similarity func(a, b string) float64

// TokenOverlap is the Jaccard index of the whitespace-separated tokens of a and b.
func TokenOverlap(a, b string) float64 {
	if a == b {
		return 1
	}
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
