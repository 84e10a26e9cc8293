// Package keystore manages the key stores of devices (KEYS-V1).
package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-fleet/internal/management/apps"
	"github.com/nerrad567/gray-logic-fleet/internal/management/message"
)

// Descriptor identifies KEYS-V1.
var Descriptor = apps.Descriptor{
	Name:     "KEYS",
	Version:  "V1",
	Request:  "keystore/request",
	Response: "keystore/response",
}

const (
	resourceKeystores = "keystores"
	resourceEntries   = "entries"
	resourceEntry     = "entry"

	metricKeystoreID = "keystoreId"
	metricAlias      = "alias"
)

// Errors returned before a request is sent.
var (
	ErrMissingAlias = errors.New("keystore: keystore id and alias are required")
	ErrInvalidEntry = errors.New("keystore: entry needs a certificate or key algorithm")
)

// EntryType is the kind of a key store entry.
type EntryType string

// Entry types.
const (
	EntryCertificate EntryType = "TRUSTED_CERTIFICATE"
	EntryPrivateKey  EntryType = "PRIVATE_KEY"
	EntryKeyPair     EntryType = "KEY_PAIR"
)

// Entry is one entry of a device key store.
type Entry struct {
	KeystoreID  string    `json:"keystoreId"`
	Alias       string    `json:"alias"`
	Type        EntryType `json:"type"`
	SubjectDN   string    `json:"subjectDN,omitempty"`
	IssuerDN    string    `json:"issuerDN,omitempty"`
	NotBefore   time.Time `json:"notBefore,omitzero"`
	NotAfter    time.Time `json:"notAfter,omitzero"`
	Algorithm   string    `json:"algorithm,omitempty"`
	Size        int       `json:"size,omitempty"`
	Certificate string    `json:"certificate,omitempty"`
}

// NewEntry is an entry to create: a PEM certificate, or a key pair the
// device generates.
type NewEntry struct {
	KeystoreID string `json:"keystoreId"`
	Alias      string `json:"alias"`

	Certificate string `json:"certificate,omitempty"`

	Algorithm          string `json:"algorithm,omitempty"`
	Size               int    `json:"size,omitempty"`
	SignatureAlgorithm string `json:"signatureAlgorithm,omitempty"`
	Attributes         string `json:"attributes,omitempty"`
}

// Service manages key stores through a Caller.
type Service struct {
	caller apps.Caller
}

// New creates a keystore Service.
func New(caller apps.Caller) *Service {
	return &Service{caller: caller}
}

// Entries lists key store entries, optionally filtered by keystoreID and
// alias.
func (s *Service) Entries(ctx context.Context, target apps.Target, keystoreID, alias string, timeout time.Duration) ([]Entry, error) {
	req := Descriptor.NewRequest(target, message.MethodRead, resourceKeystores, resourceEntries)
	if keystoreID != "" {
		req.Payload.Metrics[metricKeystoreID] = keystoreID
	}
	if alias != "" {
		req.Payload.Metrics[metricAlias] = alias
	}

	resp, err := Descriptor.Do(ctx, s.caller, req, timeout)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := apps.DecodeBody(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CreateEntry adds a certificate or generates a key pair.
func (s *Service) CreateEntry(ctx context.Context, target apps.Target, e NewEntry, timeout time.Duration) error {
	if e.KeystoreID == "" || e.Alias == "" {
		return ErrMissingAlias
	}
	var resource string
	switch {
	case e.Certificate != "":
		resource = "certificate"
	case e.Algorithm != "":
		resource = "keypair"
	default:
		return ErrInvalidEntry
	}

	req := Descriptor.NewRequest(target, message.MethodCreate, resourceKeystores, resourceEntries, resource)
	if err := apps.SetBody(req, e); err != nil {
		return err
	}
	_, err := Descriptor.Do(ctx, s.caller, req, timeout)
	return err
}

// DeleteEntry removes alias from keystoreID.
func (s *Service) DeleteEntry(ctx context.Context, target apps.Target, keystoreID, alias string, timeout time.Duration) error {
	if keystoreID == "" || alias == "" {
		return ErrMissingAlias
	}
	req := Descriptor.NewRequest(target, message.MethodDelete, resourceKeystores, resourceEntries, resourceEntry)
	req.Payload.Metrics[metricKeystoreID] = keystoreID
	req.Payload.Metrics[metricAlias] = alias
	_, err := Descriptor.Do(ctx, s.caller, req, timeout)
	return err
}
