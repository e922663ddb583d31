package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

const sampleSeed = `
contracts:
  - id: offer-weather
    title: Weather data, five reads
    rules:
      - target: https://provider.example/artifact/weather
        actions: [USE]
        constraints:
          - left_operand: COUNT
            operator: LTEQ
            right_operand: {value: "5", type: "xsd:integer"}
      - target: https://provider.example/artifact/weather
        post_duties:
          - actions: [DELETE]
            constraints:
              - left_operand: POLICY_EVALUATION_TIME
                operator: EQ
                right_operand: {value: "2030-01-01T00:00:00Z", type: "xsd:dateTimeStamp"}
        constraints:
          - left_operand: POLICY_EVALUATION_TIME
            operator: AFTER
            right_operand: {value: "2024-01-01T00:00:00Z"}
          - left_operand: POLICY_EVALUATION_TIME
            operator: BEFORE
            right_operand: {value: "2029-01-01T00:00:00Z"}
artifacts:
  - id: weather
    remote_id: https://provider.example/artifact/weather
    title: Weather
    data: "temperature=21"
resources:
  - id: res-weather
    contract_ids: [offer-weather]
    artifact_ids: [weather]
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(s.Contracts) != 1 || len(s.Artifacts) != 1 || len(s.Resources) != 1 {
		t.Fatalf("seed = %+v", s)
	}
	rules := s.Contracts[0].Rules
	wantPatterns := []usage.Pattern{usage.PatternNTimesUsage, usage.PatternUsageUntilDeletion}
	for i, want := range wantPatterns {
		if got, err := usage.Classify(rules[i]); err != nil || got != want {
			t.Errorf("rule %d pattern = %v, %v; want %v", i, got, err, want)
		}
	}
	if rules[1].PostDuties[0].Kind != usage.KindDuty {
		t.Errorf("post duty kind = %q", rules[1].PostDuties[0].Kind)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"bad yaml", "contracts: [", "parse seed"},
		{"contract without id", "contracts:\n  - title: x\n", "has no id"},
		{"rule without target", "contracts:\n  - id: c\n    rules:\n      - actions: [USE]\n", "target"},
		{"dangling contract", "resources:\n  - id: r\n    contract_ids: [nope]\n", "unknown contract"},
		{"dangling artifact", "resources:\n  - id: r\n    artifact_ids: [nope]\n", "unknown artifact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndApply(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	ctx := context.Background()
	artifacts := memory.NewArtifactStore()
	st := Stores{
		Contracts: memory.NewContractStore(),
		Artifacts: artifacts,
		Resources: memory.NewResourceStore(),
		Data:      artifacts,
	}
	for i := 0; i < 2; i++ {
		if err := Apply(ctx, s, st, discardLogger()); err != nil {
			t.Fatalf("Apply() run %d error: %v", i, err)
		}
	}

	offers, err := st.Contracts.OffersForTarget(ctx, "https://provider.example/artifact/weather")
	if err != nil || len(offers) != 1 {
		t.Errorf("OffersForTarget() = %v, %v", offers, err)
	}
	data, err := artifacts.GetData(ctx, "weather")
	if err != nil || string(data) != "temperature=21" {
		t.Errorf("GetData() = %q, %v", data, err)
	}
	if res, err := st.Resources.List(ctx); err != nil || len(res) != 1 {
		t.Errorf("resources = %v, %v", res, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
