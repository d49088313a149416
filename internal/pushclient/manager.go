package pushclient

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// LocalManager stands in for a browser push manager: it generates the subscription keys itself and uses a
// fixed endpoint. The private key stays available for decrypting what the endpoint receives.
type LocalManager struct {
	Endpoint string

	PrivateKey *ecdh.PrivateKey
}

// Subscribe generates a fresh P-256 key pair and auth secret.
func (m *LocalManager) Subscribe(_ context.Context, applicationServerKey []byte) (*PushSubscription, error) {
	if m.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured")
	}
	if _, err := ecdh.P256().NewPublicKey(applicationServerKey); err != nil {
		return nil, fmt.Errorf("invalid application server key: %w", err)
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		return nil, err
	}

	m.PrivateKey = priv
	return &PushSubscription{
		Endpoint: m.Endpoint,
		P256dh:   priv.PublicKey().Bytes(),
		Auth:     auth,
	}, nil
}

// Unsubscribe forgets the key pair.
func (m *LocalManager) Unsubscribe(_ context.Context, _ *PushSubscription) error {
	m.PrivateKey = nil
	return nil
}

// StaticPermissions always answers with the same permission.
type StaticPermissions Permission

// Request returns the static permission.
func (p StaticPermissions) Request(_ context.Context) (Permission, error) {
	return Permission(p), nil
}
