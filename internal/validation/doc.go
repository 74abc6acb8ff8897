// Package validation decides pass/fail for produced artifacts. A pipeline
// runs N independent validators over an artifact, aggregates their scores
// into a weighted average, and applies a hard veto for blocking validators.
// A bounded correction loop re-invokes the originating agent with the
// failing validators' suggested corrections before escalation.
package validation
