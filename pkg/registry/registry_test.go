package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/tokenwise-ai/tokenwise/pkg/config"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/providers"
)

func stubCaller() providers.Caller {
	return providers.CallerFunc(func(context.Context, string, string, models.CallOptions) (*models.CallResult, error) {
		return &models.CallResult{Text: "ok"}, nil
	})
}

func testProviders() []config.ProviderConfig {
	return []config.ProviderConfig{
		{
			Name: "gemini",
			Type: "gemini",
			Models: []models.ProviderModel{
				{ModelID: "gemini-1.5-pro", CostPerThousandInput: 0.00125, CostPerThousandOutput: 0.005, PriorityRank: 2},
				{ModelID: "gemini-1.5-flash", CostPerThousandInput: 0.000075, CostPerThousandOutput: 0.0003, PriorityRank: 1},
			},
		},
		{
			Name:         "groq",
			Type:         "openai",
			URL:          "https://api.groq.com/openai",
			APIKey:       "gsk-test",
			DefaultModel: "llama-3.1-8b-instant",
			Models: []models.ProviderModel{
				{ModelID: "llama-3.1-8b-instant", CostPerThousandInput: 0.00005, CostPerThousandOutput: 0.00008, PriorityRank: 1},
			},
		},
		{
			Name: "anthropic",
			Type: "anthropic",
			Models: []models.ProviderModel{
				{ModelID: "claude-3-5-haiku-latest", CostPerThousandInput: 0.0008, CostPerThousandOutput: 0.004, PriorityRank: 1},
			},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(context.Background(), testProviders(), WithCaller("gemini", stubCaller()))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestStatus(t *testing.T) {
	r := newTestRegistry(t)

	if got := r.StatusOf("gemini"); got != models.StatusAvailable {
		t.Errorf("gemini with injected caller: got %s", got)
	}
	if got := r.StatusOf("groq"); got != models.StatusAvailable {
		t.Errorf("groq with api key: got %s", got)
	}
	if got := r.StatusOf("anthropic"); got != models.StatusNotConfigured {
		t.Errorf("anthropic without key: got %s", got)
	}
	if got := r.StatusOf("mistral"); got != models.StatusNotConfigured {
		t.Errorf("unknown provider: got %s", got)
	}
	if r.Caller("anthropic") != nil {
		t.Error("unconfigured provider should have no caller")
	}
	if r.Caller("groq") == nil {
		t.Error("configured provider should have a caller")
	}
}

func TestModelsOrderedByPriority(t *testing.T) {
	r := newTestRegistry(t)

	ms, err := r.ModelsOf("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].ModelID != "gemini-1.5-flash" {
		t.Fatalf("unexpected order: %+v", ms)
	}
	if ms[0].ProviderID != "gemini" {
		t.Errorf("expected provider id to be set, got %q", ms[0].ProviderID)
	}

	if _, err := r.ModelsOf("mistral"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestDefaultModel(t *testing.T) {
	r := newTestRegistry(t)

	m, err := r.DefaultModelOf("gemini")
	if err != nil {
		t.Fatal(err)
	}
	if m != "gemini-1.5-flash" {
		t.Errorf("expected lowest priority rank as default, got %s", m)
	}

	m, err = r.DefaultModelOf("groq")
	if err != nil {
		t.Fatal(err)
	}
	if m != "llama-3.1-8b-instant" {
		t.Errorf("expected configured default, got %s", m)
	}
}

func TestLookupAndCost(t *testing.T) {
	r := newTestRegistry(t)

	m, err := r.Lookup("gemini", "gemini-1.5-pro")
	if err != nil {
		t.Fatal(err)
	}
	if m.CostPerThousandOutput != 0.005 {
		t.Errorf("unexpected model: %+v", m)
	}

	if _, err := r.Lookup("gemini", "gpt-4o"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	// 1000 in, 500 out on gemini-1.5-pro: 1.25e-3 + 2.5e-3
	got := r.Cost("gemini", "gemini-1.5-pro", 1000, 500)
	if diff := got - 0.00375; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("expected 0.00375, got %v", got)
	}
	if r.Cost("gemini", "nope", 1000, 1000) != 0 {
		t.Error("unknown model should cost nothing")
	}
}

func TestProvidersKeepConfigOrder(t *testing.T) {
	r := newTestRegistry(t)
	got := r.Providers()
	want := []string{"gemini", "groq", "anthropic"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAvailableModels(t *testing.T) {
	r := newTestRegistry(t)
	avail := r.AvailableModels()
	if _, ok := avail["anthropic"]; ok {
		t.Error("unconfigured provider should be excluded")
	}
	if len(avail["gemini"]) != 2 || len(avail["groq"]) != 1 {
		t.Errorf("unexpected available models: %+v", avail)
	}
}

func TestCompareCosts(t *testing.T) {
	r := newTestRegistry(t)
	rows := r.CompareCosts(1000)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Cost < rows[i-1].Cost {
			t.Errorf("rows not sorted at %d: %v < %v", i, rows[i].Cost, rows[i-1].Cost)
		}
	}
	if rows[0].ModelID != "llama-3.1-8b-instant" {
		t.Errorf("expected cheapest first, got %s", rows[0].ModelID)
	}
	last := rows[len(rows)-1]
	if last.ModelID != "gemini-1.5-pro" {
		t.Errorf("expected gemini-1.5-pro last, got %+v", last)
	}
	for _, row := range rows {
		if row.ProviderID == "anthropic" && row.Status != models.StatusNotConfigured {
			t.Errorf("anthropic should be listed as not configured, got %s", row.Status)
		}
	}
}

func TestDuplicateProvider(t *testing.T) {
	cfgs := testProviders()
	cfgs = append(cfgs, cfgs[0])
	if _, err := New(context.Background(), cfgs); err == nil {
		t.Fatal("expected duplicate provider error")
	}
}

func TestUnknownProviderType(t *testing.T) {
	cfgs := []config.ProviderConfig{{Name: "x", Type: "carrier-pigeon", APIKey: "k"}}
	if _, err := New(context.Background(), cfgs); err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}

func TestNilLoggerFallsBackToNop(t *testing.T) {
	r, err := New(context.Background(), testProviders(), WithLogger(nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := r.StatusOf("anthropic"); got != models.StatusNotConfigured {
		t.Errorf("expected anthropic not configured, got %s", got)
	}
}
