package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// ErrNoIdentity is returned by Get when the storage only holds a recipient.
var ErrNoIdentity = errors.New("no age identity configured")

// Encrypted wraps a Storage and encrypts every file with age (X25519).
// Without an identity it can store files but not read them back.
type Encrypted struct {
	inner     Storage
	recipient age.Recipient
	identity  age.Identity
}

// NewEncrypted parses an "age1..." recipient and an optional
// "AGE-SECRET-KEY-1..." identity.
func NewEncrypted(inner Storage, recipient, identity string) (*Encrypted, error) {
	r, err := age.ParseX25519Recipient(strings.TrimSpace(recipient))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age recipient: %w", err)
	}
	e := &Encrypted{inner: inner, recipient: r}
	if identity = strings.TrimSpace(identity); identity != "" {
		id, err := age.ParseX25519Identity(identity)
		if err != nil {
			return nil, fmt.Errorf("failed to parse age identity: %w", err)
		}
		if id.Recipient().String() != r.String() {
			return nil, errors.New("age identity does not match the recipient")
		}
		e.identity = id
	}
	return e, nil
}

// Save streams r through the age encrypter into the wrapped storage and
// returns the plaintext size.
func (e *Encrypted) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	pr, pw := io.Pipe()
	var plain int64

	go func() {
		w, err := age.Encrypt(pw, e.recipient)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		n, err := io.Copy(w, r)
		plain = n
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(w.Close())
	}()

	_, err := e.inner.Save(ctx, key, pr)
	// unblocks the writer if the inner Save gave up early
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return 0, fmt.Errorf("failed to store encrypted file: %w", err)
	}
	return plain, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if e.identity == nil {
		return nil, ErrNoIdentity
	}
	rc, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := age.Decrypt(rc, e.identity)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to decrypt file: %w", err)
	}
	return struct {
		io.Reader
		io.Closer
	}{plain, rc}, nil
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

func (e *Encrypted) Exists(ctx context.Context, key string) (bool, error) {
	return e.inner.Exists(ctx, key)
}
