// Package provider defines the Capability Provider boundary: the external
// systems an agent invokes to produce an artifact. The engine only ever
// sees this interface; the business semantics of any individual capability
// live behind it.
package provider

import (
	"context"

	"github.com/tactix-ai/tactix/pkg/models"
)

// CapabilityProvider produces an artifact for a task. Implementations must
// honor the per-call deadline on ctx and return a self-reported confidence
// score in [0,1] on the artifact.
type CapabilityProvider interface {
	Invoke(ctx context.Context, task *models.Task) (*models.Artifact, error)
}

// Factory creates a CapabilityProvider per agent. Registered in a typed
// lookup table at startup; no runtime reflection.
type Factory interface {
	NewProvider(agentID string) (CapabilityProvider, error)
}
