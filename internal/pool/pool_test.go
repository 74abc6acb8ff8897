package pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactix-ai/tactix/pkg/models"
)

func newAgent(id string, class models.AgentClass, maxConc int, caps ...models.TaskType) *models.Agent {
	return &models.Agent{
		ID:             id,
		Class:          class,
		Capabilities:   caps,
		MaxConcurrency: maxConc,
	}
}

func TestRegisterRejectsDuplicatesAndBadClass(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 2, models.TaskTypeCodeGeneration)))
	err := r.Register(newAgent("a1", models.ClassGeneralist, 2, models.TaskTypeCodeGeneration))
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	err = r.Register(&models.Agent{ID: "a2", Class: "wizard", MaxConcurrency: 1})
	assert.Error(t, err)
}

func TestAcquirePrefersLeastLoaded(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))
	require.NoError(t, r.Register(newAgent("a2", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))

	first, ok := r.Acquire(models.TaskTypeCodeGeneration, nil)
	require.True(t, ok)
	// Ties break by ID, so a1 goes first.
	assert.Equal(t, "a1", first.ID)

	second, ok := r.Acquire(models.TaskTypeCodeGeneration, nil)
	require.True(t, ok)
	assert.Equal(t, "a2", second.ID)

	r.Release("a1")
	third, ok := r.Acquire(models.TaskTypeCodeGeneration, nil)
	require.True(t, ok)
	assert.Equal(t, "a1", third.ID)
}

func TestAcquireRespectsCapabilities(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("ui", models.ClassSpecialist, 2, models.TaskTypeUIGeneration)))

	_, ok := r.Acquire(models.TaskTypeTestGeneration, nil)
	assert.False(t, ok)

	got, ok := r.Acquire(models.TaskTypeUIGeneration, nil)
	require.True(t, ok)
	assert.Equal(t, "ui", got.ID)
}

func TestAcquireRespectsAgentConcurrency(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 1, models.TaskTypeCodeGeneration)))

	_, ok := r.Acquire(models.TaskTypeCodeGeneration, nil)
	require.True(t, ok)

	_, ok = r.Acquire(models.TaskTypeCodeGeneration, nil)
	assert.False(t, ok, "agent at MaxConcurrency must not be reserved again")

	r.Release("a1")
	_, ok = r.Acquire(models.TaskTypeCodeGeneration, nil)
	assert.True(t, ok)
}

func TestAcquireRespectsClassCeiling(t *testing.T) {
	r := NewRegistry(map[models.AgentClass]int{models.ClassGeneralist: 1})
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))
	require.NoError(t, r.Register(newAgent("a2", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))

	_, ok := r.Acquire(models.TaskTypeCodeGeneration, nil)
	require.True(t, ok)

	// Class ceiling of 1: second acquire fails even though a2 is idle.
	_, ok = r.Acquire(models.TaskTypeCodeGeneration, nil)
	assert.False(t, ok)
}

func TestAcquireHonorsExclusionWhenAlternativeExists(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))
	require.NoError(t, r.Register(newAgent("a2", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))

	got, ok := r.Acquire(models.TaskTypeCodeGeneration, []string{"a1"})
	require.True(t, ok)
	assert.Equal(t, "a2", got.ID)
}

func TestAcquireFallsBackToExcludedWhenNoAlternative(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("only", models.ClassGeneralist, 4, models.TaskTypeCodeGeneration)))

	// Excluding the only capable agent still yields it: the rotation rule
	// applies only when an alternative exists.
	got, ok := r.Acquire(models.TaskTypeCodeGeneration, []string{"only"})
	require.True(t, ok)
	assert.Equal(t, "only", got.ID)
}

func TestAcquireDistinctAllOrNothing(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 1, models.TaskTypeReview)))
	require.NoError(t, r.Register(newAgent("a2", models.ClassGeneralist, 1, models.TaskTypeReview)))
	require.NoError(t, r.Register(newAgent("a3", models.ClassGeneralist, 1, models.TaskTypeReview)))

	agents, ok := r.AcquireDistinct(models.TaskTypeReview, 3, nil)
	require.True(t, ok)
	assert.Len(t, agents, 3)

	seen := make(map[string]bool)
	for _, a := range agents {
		assert.False(t, seen[a.ID], "agents must be distinct")
		seen[a.ID] = true
	}

	// All three are busy: a quorum of three cannot be formed.
	_, ok = r.AcquireDistinct(models.TaskTypeReview, 3, nil)
	assert.False(t, ok)

	// Releasing one is not enough for three; loads must be fully restored
	// by the failed all-or-nothing attempt above.
	r.Release("a1")
	assert.Equal(t, 0, r.Load("a1"))
	_, ok = r.AcquireDistinct(models.TaskTypeReview, 3, nil)
	assert.False(t, ok)
}

func TestConcurrentAcquireNeverOverrunsCeilings(t *testing.T) {
	r := NewRegistry(map[models.AgentClass]int{models.ClassGeneralist: 3})
	require.NoError(t, r.Register(newAgent("a1", models.ClassGeneralist, 2, models.TaskTypeCodeGeneration)))
	require.NoError(t, r.Register(newAgent("a2", models.ClassGeneralist, 2, models.TaskTypeCodeGeneration)))

	var wg sync.WaitGroup
	var acquired atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Acquire(models.TaskTypeCodeGeneration, nil); ok {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	// Two agents at MaxConcurrency 2 under a class ceiling of 3: exactly
	// three reservations may succeed no matter how the calls interleave.
	assert.Equal(t, int32(3), acquired.Load())
	assert.LessOrEqual(t, r.Load("a1"), 2)
	assert.LessOrEqual(t, r.Load("a2"), 2)
	assert.Equal(t, 3, r.Load("a1")+r.Load("a2"))
}

func TestCapableIsSorted(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newAgent("b", models.ClassGeneralist, 1, models.TaskTypeDelivery)))
	require.NoError(t, r.Register(newAgent("a", models.ClassGeneralist, 1, models.TaskTypeDelivery)))

	assert.Equal(t, []string{"a", "b"}, r.Capable(models.TaskTypeDelivery))
}
