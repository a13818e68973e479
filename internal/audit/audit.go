// Package audit implements the append-only signed event log. Every entry is
// signed with a persistent Ed25519 key so post-hoc tampering with the log
// file is detectable.
package audit

import (
	"bufio"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/allisson/vaultd/internal/crypto"
	apperrors "github.com/allisson/vaultd/internal/errors"
)

// Entry is one audit event. Entries are append-only: never mutated or
// deleted after being written.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Client    string    `json:"client,omitempty"`
	Secret    string    `json:"secret,omitempty"`
	Result    string    `json:"result"`
	KeyID     string    `json:"key_id,omitempty"`
	Signature string    `json:"signature"`
}

// Log appends signed entries to a JSON Lines file, flushing after each
// write. Audit writes must be strictly ordered, so a single mutex guards
// the file.
type Log struct {
	mu        sync.Mutex
	file      *os.File
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	keyID     string
	logger    *slog.Logger
	onFailure func()
}

// Init ensures the containing directory exists, loads the Ed25519 signing
// keypair from the sibling key file (creating and persisting one with
// owner-only permissions on first run), and opens the log for appending.
func Init(path string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to create audit directory: "+err.Error())
	}

	priv, pub, err := loadOrCreateSigningKey(SigningKeyPath(path))
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		crypto.Zero(priv)
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open audit log: "+err.Error())
	}

	return &Log{
		file:   file,
		priv:   priv,
		pub:    pub,
		keyID:  crypto.Fingerprint(pub),
		logger: logger,
	}, nil
}

// loadOrCreateSigningKey reads the base64 Ed25519 seed from keyPath, or
// generates a new keypair and persists the seed on first run.
func loadOrCreateSigningKey(keyPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if _, err := os.Stat(filepath.Clean(keyPath)); err == nil {
		return loadSigningKey(keyPath)
	} else if !os.IsNotExist(err) {
		return nil, nil, apperrors.Wrap(apperrors.ErrStorage, "failed to stat audit signing key: "+err.Error())
	}

	pub, priv, err := crypto.GenerateSigningKeypair()
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrCrypto, err.Error())
	}

	encoded := base64.StdEncoding.EncodeToString(priv.Seed()) + "\n"
	if err := os.WriteFile(keyPath, []byte(encoded), 0o600); err != nil {
		crypto.Zero(priv)
		return nil, nil, apperrors.Wrap(apperrors.ErrStorage, "failed to write audit signing key: "+err.Error())
	}

	return priv, pub, nil
}

// Log signs and appends one entry, flushing immediately.
func (l *Log) Log(event, client, secret, result string) error {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Client:    client,
		Secret:    secret,
		Result:    result,
		KeyID:     l.keyID,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.priv == nil {
		return apperrors.Wrap(apperrors.ErrStorage, "audit log is closed")
	}

	entry.Signature = base64.StdEncoding.EncodeToString(
		crypto.Sign(l.priv, Canonical(&entry)),
	)

	line, err := json.Marshal(entry)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to serialize audit entry: "+err.Error())
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to append audit entry: "+err.Error())
	}
	if err := l.file.Sync(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to flush audit log: "+err.Error())
	}

	return nil
}

// LogSuccess records a successful operation. A broken audit sink degrades to
// an error-level diagnostic, never a request failure: availability of the
// secret service must not depend on the audit sink's health.
func (l *Log) LogSuccess(event, client, secret string) {
	if err := l.Log(event, client, secret, "success"); err != nil {
		l.logger.Error("audit write failed",
			slog.String("event", event),
			slog.Any("error", err),
		)
		l.notifyFailure()
	}
}

// LogError records a failed or denied operation; like LogSuccess, sink
// failures never propagate to the caller's control flow.
func (l *Log) LogError(event, client, secret, reason string) {
	if err := l.Log(event, client, secret, reason); err != nil {
		l.logger.Error("audit write failed",
			slog.String("event", event),
			slog.Any("error", err),
		)
		l.notifyFailure()
	}
}

// SetFailureHook registers a callback invoked whenever a sink write fails,
// letting callers count audit failures without coupling the log to a
// metrics implementation.
func (l *Log) SetFailureHook(hook func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFailure = hook
}

func (l *Log) notifyFailure() {
	l.mu.Lock()
	hook := l.onFailure
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// PublicKey returns the verification key for the log's signatures.
func (l *Log) PublicKey() ed25519.PublicKey {
	return l.pub
}

// Close zeroizes the signing key and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	crypto.Zero(l.priv)
	l.priv = nil
	return l.file.Close()
}

// Canonical builds the deterministic pipe-delimited representation that is
// signed: timestamp|event|client|secret|result.
func Canonical(e *Entry) []byte {
	return []byte(strings.Join([]string{
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Event,
		e.Client,
		e.Secret,
		e.Result,
	}, "|"))
}

// VerifyEntry recomputes the canonical representation and validates the
// stored signature. This is the forensic-side operation for detecting
// post-hoc tampering with the log file.
func VerifyEntry(pub ed25519.PublicKey, e *Entry) bool {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	return crypto.Verify(pub, Canonical(e), sig)
}

// VerifyReport summarizes an integrity scan over an audit log file.
type VerifyReport struct {
	Total        int   `json:"total"`
	Valid        int   `json:"valid"`
	Invalid      int   `json:"invalid"`
	InvalidLines []int `json:"invalid_lines,omitempty"`
}

// VerifyFile scans an audit log file line by line and checks every entry's
// signature against pub. Unparsable lines count as invalid.
func VerifyFile(path string, pub ed25519.PublicKey) (*VerifyReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "open audit log: "+err.Error())
	}
	defer func() { _ = file.Close() }()

	report := &VerifyReport{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		report.Total++
		var entry Entry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			report.Invalid++
			report.InvalidLines = append(report.InvalidLines, line)
			continue
		}

		if VerifyEntry(pub, &entry) {
			report.Valid++
		} else {
			report.Invalid++
			report.InvalidLines = append(report.InvalidLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "scan audit log: "+err.Error())
	}

	return report, nil
}

// LoadPublicKey reads a signing key file and returns only the public half,
// for offline verification of an audit log.
func LoadPublicKey(keyPath string) (ed25519.PublicKey, error) {
	priv, pub, err := loadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	crypto.Zero(priv)
	return pub, nil
}

func loadSigningKey(keyPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	data, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read audit signing key: "+err.Error())
	}

	seed, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if decErr != nil || len(seed) != ed25519.SeedSize {
		return nil, nil, apperrors.Wrap(apperrors.ErrCrypto, "audit signing key file is invalid")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	crypto.Zero(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// SigningKeyPath returns the path of the signing key file that sits next to
// an audit log file.
func SigningKeyPath(logPath string) string {
	return logPath + ".key"
}
