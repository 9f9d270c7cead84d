// Package auth picks the credential a run uses to reach its host.
package auth

import (
	"context"
	"log/slog"

	"github.com/tastythames/host-backup/internal/faults"
)

type Method int

const (
	None Method = iota
	Key
	Password
)

func (m Method) String() string {
	switch m {
	case Key:
		return "key"
	case Password:
		return "password"
	default:
		return "none"
	}
}

// Prober runs a short, non-interactive remote command with the key
// credential.
type Prober interface {
	Probe(ctx context.Context, host string) error
}

type Resolver struct {
	prober      Prober
	hasPassword bool
}

// NewResolver returns a Resolver. hasPassword enables the password fallback.
func NewResolver(p Prober, hasPassword bool) *Resolver {
	return &Resolver{prober: p, hasPassword: hasPassword}
}

// Resolve returns the method to use for host. The password is never probed;
// the first transfer is what proves it.
func (r *Resolver) Resolve(ctx context.Context, host string, log *slog.Logger) Method {
	err := r.prober.Probe(ctx, host)
	if err == nil {
		log.Info("using key authentication", "auth", Key)
		return Key
	}
	log.Info("key authentication failed", "err", err)

	if r.hasPassword {
		log.Info("falling back to password authentication", "auth", Password)
		return Password
	}
	log.Error("no usable authentication method", "auth", None, faults.Key, faults.AuthUnavailable)
	return None
}
