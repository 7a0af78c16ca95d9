package routing

import (
	"strings"
	"testing"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

func attempt(provider, model string, n int) receipt.ModelAttempt {
	return receipt.ModelAttempt{
		Provider:      provider,
		Model:         model,
		AttemptNumber: n,
		TimestampUTC:  time.Now().UTC(),
	}
}

func TestDecideEmptyAttemptsIsInvalidState(t *testing.T) {
	m := NewManager()

	d := m.Decide(receipt.TriggerInvalidJSON, nil, intent.ProfileBalanced, JobIntentRouting)
	if d.Action != ActionFail {
		t.Fatalf("expected FAIL, got %s", d.Action)
	}
	if !strings.Contains(d.Reason, "invalid state") {
		t.Errorf("reason %q should mention invalid state", d.Reason)
	}
}

func TestDecideRetrySameModelOnContentFailures(t *testing.T) {
	m := NewManager()

	for _, trigger := range []receipt.FallbackTrigger{
		receipt.TriggerInvalidJSON,
		receipt.TriggerValidationError,
	} {
		t.Run(string(trigger), func(t *testing.T) {
			attempts := []receipt.ModelAttempt{attempt("openai", "gpt-4o-mini", 1)}
			d := m.Decide(trigger, attempts, intent.ProfileBalanced, JobIntentRouting)

			if d.Action != ActionRetrySameModel {
				t.Fatalf("expected RETRY_SAME_MODEL, got %s (%s)", d.Action, d.Reason)
			}
			if d.NextProvider != "openai" || d.NextModel != "gpt-4o-mini" {
				t.Errorf("retry should target same model, got %s/%s", d.NextProvider, d.NextModel)
			}
			if !d.UseRepairPrompt {
				t.Error("retry must carry the repair prompt")
			}
		})
	}
}

func TestDecideTransportFailuresSkipRetry(t *testing.T) {
	m := NewManager()

	for _, trigger := range []receipt.FallbackTrigger{
		receipt.TriggerTimeout,
		receipt.TriggerRateLimit,
		receipt.TriggerProviderDown,
		receipt.TriggerCapabilityMismatch,
	} {
		t.Run(string(trigger), func(t *testing.T) {
			attempts := []receipt.ModelAttempt{attempt("openai", "gpt-4o-mini", 1)}
			d := m.Decide(trigger, attempts, intent.ProfileBalanced, JobIntentRouting)

			if d.Action != ActionFallbackNextModel {
				t.Fatalf("expected FALLBACK_NEXT_MODEL, got %s (%s)", d.Action, d.Reason)
			}
			if d.NextProvider == "openai" && d.NextModel == "gpt-4o-mini" {
				t.Error("fallback must not revisit the failed model")
			}
			if d.UseRepairPrompt {
				t.Error("fallback to a fresh model must not carry the repair prompt")
			}
		})
	}
}

func TestDecidePerModelCapForcesFallback(t *testing.T) {
	m := NewManager()

	// Two attempts at the first model exhaust its budget even for a
	// repairable trigger.
	attempts := []receipt.ModelAttempt{
		attempt("openai", "gpt-4o-mini", 1),
		attempt("openai", "gpt-4o-mini", 2),
	}
	d := m.Decide(receipt.TriggerInvalidJSON, attempts, intent.ProfileBalanced, JobIntentRouting)

	if d.Action != ActionFallbackNextModel {
		t.Fatalf("expected FALLBACK_NEXT_MODEL, got %s (%s)", d.Action, d.Reason)
	}
	if d.NextProvider != "openai" || d.NextModel != "gpt-4o" {
		t.Errorf("expected next chain entry openai/gpt-4o, got %s/%s", d.NextProvider, d.NextModel)
	}
}

func TestDecideChainOrderPreserved(t *testing.T) {
	m := NewManager()

	// First two chain entries exhausted; next must be the third entry.
	attempts := []receipt.ModelAttempt{
		attempt("openai", "gpt-4o-mini", 1),
		attempt("openai", "gpt-4o-mini", 2),
		attempt("openai", "gpt-4o", 1),
	}
	d := m.Decide(receipt.TriggerTimeout, attempts, intent.ProfileBalanced, JobIntentRouting)

	if d.Action != ActionFallbackNextModel {
		t.Fatalf("expected FALLBACK_NEXT_MODEL, got %s (%s)", d.Action, d.Reason)
	}
	if d.NextProvider != "ollama" || d.NextModel != "llama3.2:1b" {
		t.Errorf("expected ollama/llama3.2:1b, got %s/%s", d.NextProvider, d.NextModel)
	}
}

func TestDecideExhaustionAfterThreeModels(t *testing.T) {
	m := NewManager()

	attempts := []receipt.ModelAttempt{
		attempt("openai", "gpt-4o-mini", 1),
		attempt("openai", "gpt-4o-mini", 2),
		attempt("openai", "gpt-4o", 1),
		attempt("openai", "gpt-4o", 2),
		attempt("ollama", "llama3.2:1b", 1),
		attempt("ollama", "llama3.2:1b", 2),
	}
	d := m.Decide(receipt.TriggerValidationError, attempts, intent.ProfileBalanced, JobIntentRouting)

	if d.Action != ActionFail {
		t.Fatalf("expected FAIL, got %s (%s)", d.Action, d.Reason)
	}
	if !strings.Contains(d.Reason, "exhausted") {
		t.Errorf("reason %q should mention exhaustion", d.Reason)
	}
}

func TestDecideDistinctModelCapWinsOverRetry(t *testing.T) {
	m := NewManager()

	// Third distinct model just failed once with a repairable trigger;
	// one retry remains for it before exhaustion.
	attempts := []receipt.ModelAttempt{
		attempt("openai", "gpt-4o-mini", 1),
		attempt("openai", "gpt-4o", 1),
		attempt("ollama", "llama3.2:1b", 1),
	}
	d := m.Decide(receipt.TriggerInvalidJSON, attempts, intent.ProfileBalanced, JobIntentRouting)

	if d.Action != ActionRetrySameModel {
		t.Fatalf("retry budget for the current model should be spent first, got %s", d.Action)
	}

	// After the retry is spent, the request is out of models.
	attempts = append(attempts, attempt("ollama", "llama3.2:1b", 2))
	d = m.Decide(receipt.TriggerInvalidJSON, attempts, intent.ProfileBalanced, JobIntentRouting)
	if d.Action != ActionFail {
		t.Fatalf("expected FAIL after cap, got %s (%s)", d.Action, d.Reason)
	}
}

func TestDecideWorstCaseAttemptBound(t *testing.T) {
	m := NewManager()

	// Walk the policy to completion and count total attempts.
	var attempts []receipt.ModelAttempt
	current := m.FirstModel(intent.ProfileBalanced, JobIntentRouting)

	total := 0
	for {
		total++
		if total > 10 {
			t.Fatal("policy did not terminate")
		}
		attempts = append(attempts, attempt(current.Provider, current.Model, 0))

		d := m.Decide(receipt.TriggerInvalidJSON, attempts, intent.ProfileBalanced, JobIntentRouting)
		if d.Action == ActionFail {
			break
		}
		current = ModelRef{Provider: d.NextProvider, Model: d.NextModel}
	}

	want := MaxAttemptsPerModel * MaxModelsPerRequest
	if total != want {
		t.Errorf("worst case total attempts = %d, want %d", total, want)
	}
}

func TestChainCappedAtMaxModels(t *testing.T) {
	m := NewManager()
	m.ConfigureChain(intent.ProfileBalanced, JobPlanning, []ModelRef{
		{Provider: "openai", Model: "a"},
		{Provider: "openai", Model: "b"},
		{Provider: "openai", Model: "c"},
		{Provider: "openai", Model: "d"},
	})

	chain := m.Chain(intent.ProfileBalanced, JobPlanning)
	if len(chain) != MaxModelsPerRequest {
		t.Fatalf("chain length = %d, want %d", len(chain), MaxModelsPerRequest)
	}
}

func TestChainInheritsIntentRouting(t *testing.T) {
	m := NewManager()

	// SUMMARIZATION has no explicit entry; it inherits the profile's
	// INTENT_ROUTING chain.
	inherited := m.Chain(intent.ProfileBalanced, JobSummarization)
	routing := m.Chain(intent.ProfileBalanced, JobIntentRouting)

	if len(inherited) != len(routing) {
		t.Fatalf("inherited chain length %d != routing chain length %d", len(inherited), len(routing))
	}
	for i := range inherited {
		if inherited[i] != routing[i] {
			t.Errorf("entry %d: %v != %v", i, inherited[i], routing[i])
		}
	}
}

func TestChainOfflineProfileIsLocalOnly(t *testing.T) {
	m := NewManager()

	for _, job := range JobClasses() {
		for _, ref := range m.Chain(intent.ProfileOffline, job) {
			if ref.Provider != "ollama" {
				t.Errorf("OFFLINE %s chain contains non-local provider %s", job, ref.Provider)
			}
		}
	}
}

func TestChainReturnsCopy(t *testing.T) {
	m := NewManager()

	chain := m.Chain(intent.ProfileBalanced, JobIntentRouting)
	chain[0] = ModelRef{Provider: "mutated", Model: "x"}

	fresh := m.Chain(intent.ProfileBalanced, JobIntentRouting)
	if fresh[0].Provider == "mutated" {
		t.Error("Chain must return a copy, not the internal slice")
	}
}

func TestFirstModelUnknownCombinationFallsBack(t *testing.T) {
	m := NewManager()

	// An unregistered profile value (not produced by normal parsing) still
	// resolves to the ultimate fallback rather than panicking.
	ref := m.FirstModel(intent.RoutingProfile("BOGUS"), JobPlanning)
	if ref != ultimateFallback {
		t.Errorf("expected ultimate fallback, got %v", ref)
	}
}
