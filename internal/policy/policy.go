// Package policy implements the RBAC engine: per-client allow/deny rules
// over secret-name patterns plus permission verbs, loaded once at startup
// from a declarative YAML document.
package policy

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/allisson/vaultd/internal/errors"
)

// Verb is a permission verb a client may hold.
type Verb string

const (
	// VerbRead allows retrieving a secret's decrypted value.
	VerbRead Verb = "read"

	// VerbWrite allows creating or updating a secret.
	VerbWrite Verb = "write"

	// VerbRotate allows rotating secrets.
	VerbRotate Verb = "rotate"

	// VerbList allows listing secret metadata.
	VerbList Verb = "list"

	// VerbDelete allows removing a secret.
	VerbDelete Verb = "delete"

	// VerbAdmin subsumes every other verb.
	VerbAdmin Verb = "admin"
)

// ClientRule describes what one client may do: which secret-name patterns it
// may touch, which it is explicitly denied, and which verbs it holds.
// TokenHash, when set, is an Argon2id hash the client's bearer token must
// verify against.
type ClientRule struct {
	Allow     []string `yaml:"allow"`
	Deny      []string `yaml:"deny"`
	Verbs     []Verb   `yaml:"verbs"`
	TokenHash string   `yaml:"token_hash"`
}

// Policy maps client identifiers to their rules. DefaultDeny controls the
// outcome for clients absent from the map.
type Policy struct {
	DefaultDeny bool                  `yaml:"default_deny"`
	Clients     map[string]ClientRule `yaml:"clients"`
}

// FailClosed returns the policy used when no usable policy document exists:
// empty, with default deny. Nothing is authorized under it.
func FailClosed() *Policy {
	return &Policy{DefaultDeny: true, Clients: map[string]ClientRule{}}
}

// Load parses the policy document at path. A missing or unparsable file
// degrades safely: the returned policy is the fail-closed one and the error
// describes what went wrong so the caller can log it.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return FailClosed(), apperrors.Wrap(apperrors.ErrPolicy, "failed to read policy file: "+err.Error())
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return FailClosed(), apperrors.Wrap(apperrors.ErrPolicy, "failed to parse policy file: "+err.Error())
	}
	if p.Clients == nil {
		p.Clients = map[string]ClientRule{}
	}

	return &p, nil
}

// Rule returns the rule for a client, if one exists.
func (p *Policy) Rule(client string) (ClientRule, bool) {
	rule, ok := p.Clients[client]
	return rule, ok
}

// Allowed reports whether a client may touch a secret name at all.
// A client absent from the map gets the default. For known clients a
// matching deny pattern always wins over any matching allow pattern.
func (p *Policy) Allowed(client, secretName string) bool {
	rule, ok := p.Clients[client]
	if !ok {
		return !p.DefaultDeny
	}

	for _, pattern := range rule.Deny {
		if matchPattern(pattern, secretName) {
			return false
		}
	}

	for _, pattern := range rule.Allow {
		if matchPattern(pattern, secretName) {
			return true
		}
	}

	return false
}

// HasVerb reports whether a client holds the given verb (or admin).
// A client absent from the map gets the default.
func (p *Policy) HasVerb(client string, verb Verb) bool {
	rule, ok := p.Clients[client]
	if !ok {
		return !p.DefaultDeny
	}

	for _, v := range rule.Verbs {
		if v == verb || v == VerbAdmin {
			return true
		}
	}

	return false
}

// Authorized reports whether a client may perform verb on secretName:
// it must hold the verb (or admin) and the name must pass the allow/deny
// patterns.
func (p *Policy) Authorized(client, secretName string, verb Verb) bool {
	return p.HasVerb(client, verb) && p.Allowed(client, secretName)
}

// matchPattern matches a secret name against a policy pattern.
// Supported forms: the universal wildcard "*", prefix wildcards ("foo*"),
// suffix wildcards ("*foo"), and exact match.
func matchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	default:
		return pattern == name
	}
}
