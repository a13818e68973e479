// Package intrusion tracks per-client failure scores, temporary bans, and
// access to canary secrets.
package intrusion

import (
	"sync"
	"time"
)

// DefaultCanaries are decoy secret names no legitimate client should ever
// request. Any request for one is itself a high-confidence intrusion signal.
var DefaultCanaries = []string{
	"aws_root_credentials",
	"prod_master_password",
	"root_ssh_key",
	"database_admin_backup",
}

// Detector keeps per-client failure state. Mutated only on failure and
// denial events; a score resets only indirectly, when its ban expires.
type Detector struct {
	mu          sync.Mutex
	threshold   int
	banDuration time.Duration
	scores      map[string]int
	bans        map[string]time.Time
	canaries    map[string]struct{}

	now func() time.Time
}

// NewDetector creates a detector. A client reaching threshold failures is
// banned for banDuration from that point. An empty canaries list selects
// DefaultCanaries.
func NewDetector(threshold int, banDuration time.Duration, canaries []string) *Detector {
	if len(canaries) == 0 {
		canaries = DefaultCanaries
	}

	canarySet := make(map[string]struct{}, len(canaries))
	for _, name := range canaries {
		canarySet[name] = struct{}{}
	}

	return &Detector{
		threshold:   threshold,
		banDuration: banDuration,
		scores:      make(map[string]int),
		bans:        make(map[string]time.Time),
		canaries:    canarySet,
		now:         time.Now,
	}
}

// ReportFailure increments the client's failure counter; once the counter
// reaches the threshold the client is banned for the cool-down window.
func (d *Detector) ReportFailure(client, reason string) {
	_ = reason // recorded by the caller's audit entry

	d.mu.Lock()
	defer d.mu.Unlock()

	d.scores[client]++
	if d.scores[client] >= d.threshold {
		d.bans[client] = d.now().Add(d.banDuration)
	}
}

// IsBanned reports whether the client is currently banned. A ban self-clears
// once its expiry passes; the failure score clears with it.
func (d *Detector) IsBanned(client string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiry, ok := d.bans[client]
	if !ok {
		return false
	}

	if !d.now().Before(expiry) {
		delete(d.bans, client)
		delete(d.scores, client)
		return false
	}

	return true
}

// Score returns the client's current failure score.
func (d *Detector) Score(client string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scores[client]
}

// CheckCanary reports whether the requested secret is a canary. A hit
// immediately records a failure for the client: the caller must treat it as
// a high-severity incident regardless of what the policy check would say.
func (d *Detector) CheckCanary(secretName, client string) bool {
	if _, ok := d.canaries[secretName]; !ok {
		return false
	}

	d.ReportFailure(client, "canary access")
	return true
}
