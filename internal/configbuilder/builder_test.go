package configbuilder

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestBuild_IndividualHeaders(t *testing.T) {
	h := map[string]string{
		"x-portkey-provider": "openai",
		"authorization":       "Bearer sk-test-123",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Provider != "openai" {
		t.Errorf("provider = %q, want openai", target.Provider)
	}
	if target.APIKey != "sk-test-123" {
		t.Errorf("apiKey = %q, want sk-test-123", target.APIKey)
	}
}

func TestBuild_ConfigHeaderBareLeafEnriched(t *testing.T) {
	h := map[string]string{
		"x-portkey-config":   `{"retry": {"attempts": 3, "on_status_codes": [429, 500]}}`,
		"x-portkey-provider":  "azure-openai",
		"authorization":       "Bearer sk-azure",
		"x-portkey-resource-name": "myresource",
		"x-portkey-deployment-id": "mydeploy",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Provider != "azure-openai" {
		t.Errorf("provider = %q, want azure-openai", target.Provider)
	}
	if target.Retry == nil || target.Retry.Attempts != 3 {
		t.Fatalf("retry not decoded: %+v", target.Retry)
	}
	if len(target.Retry.OnStatusCodes) != 2 {
		t.Errorf("on_status_codes = %v", target.Retry.OnStatusCodes)
	}
	if target.Azure == nil || target.Azure.ResourceName != "myresource" {
		t.Errorf("azure config not populated: %+v", target.Azure)
	}
	if target.Azure.DeploymentID != "mydeploy" {
		t.Errorf("deploymentId = %q", target.Azure.DeploymentID)
	}
}

func TestBuild_ConfigHeaderWithTargetsNotEnriched(t *testing.T) {
	h := map[string]string{
		"x-portkey-config": `{
			"strategy": {"mode": "fallback"},
			"targets": [
				{"provider": "openai", "virtual_key": "vk1"},
				{"provider": "anthropic", "virtual_key": "vk2"}
			]
		}`,
		"x-portkey-provider": "should-be-ignored",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Provider != "" {
		t.Errorf("provider should stay empty on a strategy node, got %q", target.Provider)
	}
	if target.Strategy == nil || target.Strategy.Mode != "fallback" {
		t.Fatalf("strategy not decoded: %+v", target.Strategy)
	}
	if len(target.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(target.Targets))
	}
	if target.Targets[0].VirtualKey != "vk1" || target.Targets[1].VirtualKey != "vk2" {
		t.Errorf("targets decoded wrong: %+v", target.Targets)
	}
	if target.Targets[0].OriginalIndex != 0 || target.Targets[1].OriginalIndex != 1 {
		t.Errorf("original index not stamped: %+v", target.Targets)
	}
}

func TestBuild_CBConfigKeepsSnakeCase(t *testing.T) {
	h := map[string]string{
		"x-portkey-config": `{
			"provider": "openai",
			"cb_config": {"failure_threshold": 5, "success_threshold": 2, "timeout": "30s"}
		}`,
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.CBConfig == nil {
		t.Fatal("expected cb_config decoded")
	}
	if target.CBConfig.FailureThreshold != 5 || target.CBConfig.SuccessThreshold != 2 {
		t.Errorf("cb_config decoded wrong: %+v", target.CBConfig)
	}
}

func TestBuild_DefaultGuardrailHeadersMerged(t *testing.T) {
	h := map[string]string{
		"x-portkey-provider":                   "openai",
		"x-portkey-default-input-guardrails":    `[{"pii": {"mode": "redact"}}]`,
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(target.DefaultInputGuardrails) != 1 {
		t.Fatalf("expected 1 default input guardrail, got %+v", target.DefaultInputGuardrails)
	}
}

// TestBuild_RoundTrip verifies SPEC_FULL.md §8 testable property 4: feeding
// the camelCase-normalized form of a config object back through Build (as a
// fresh x-portkey-config header) must produce an equal Target, with the
// pinned exclusion-list keys (here override_params' nested DSL key) still
// carrying their original casing.
func TestBuild_RoundTrip(t *testing.T) {
	raw := `{
		"provider": "openai",
		"retry": {"attempts": 2, "on_status_codes": [429, 500]},
		"strict_openai_compliance": true,
		"override_params": {"Model_Name": "gpt-4o", "temperature": 0.2},
		"input_guardrails": [{"id": "g1", "type": "input", "checks": []}]
	}`

	h1 := map[string]string{"x-portkey-config": raw}
	target1, err := Build(h1)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}

	// Recover the camelCase-normalized intermediate the way Build() would
	// have produced it, and feed that back in as a fresh config header.
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	camel, ok := convertKeysToCamelCase(obj).(map[string]any)
	if !ok {
		t.Fatal("convertKeysToCamelCase did not return a map")
	}
	serialized, err := json.Marshal(camel)
	if err != nil {
		t.Fatalf("marshal camel form: %v", err)
	}

	h2 := map[string]string{"x-portkey-config": string(serialized)}
	target2, err := Build(h2)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}

	if !reflect.DeepEqual(target1, target2) {
		t.Fatalf("round trip not equal:\nfirst:  %+v\nsecond: %+v", target1, target2)
	}
	if target2.OverrideParams["Model_Name"] != "gpt-4o" {
		t.Errorf("override_params nested key lost its original casing: %+v", target2.OverrideParams)
	}
}

func TestBuild_AnthropicHeaderFamilyEnriched(t *testing.T) {
	h := map[string]string{
		"x-portkey-provider":          "anthropic",
		"x-portkey-anthropic-beta":    "prompt-caching-2024-07-31",
		"x-portkey-anthropic-version": "2023-06-01",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Extras["anthropicBeta"] != "prompt-caching-2024-07-31" {
		t.Errorf("anthropicBeta = %v, want prompt-caching-2024-07-31", target.Extras["anthropicBeta"])
	}
	if target.Extras["anthropicVersion"] != "2023-06-01" {
		t.Errorf("anthropicVersion = %v, want 2023-06-01", target.Extras["anthropicVersion"])
	}
}

func TestBuild_FireworksHeaderFamilyEnriched(t *testing.T) {
	h := map[string]string{
		"x-portkey-provider":              "fireworks-ai",
		"x-portkey-fireworks-account-id":  "acct-1",
		"x-portkey-fireworks-file-length": "1024",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Extras["fireworksAccountId"] != "acct-1" {
		t.Errorf("fireworksAccountId = %v, want acct-1", target.Extras["fireworksAccountId"])
	}
}

func TestBuild_UnknownProviderOnlyPicksUpMistralFimCompletion(t *testing.T) {
	h := map[string]string{
		"x-portkey-provider":               "mistral",
		"x-portkey-mistral-fim-completion": "true",
		"x-portkey-snowflake-account":      "should-not-apply",
	}
	target, err := Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if target.Extras["mistralFimCompletion"] != "true" {
		t.Errorf("mistralFimCompletion = %v, want true", target.Extras["mistralFimCompletion"])
	}
	if _, ok := target.Extras["snowflakeAccount"]; ok {
		t.Errorf("snowflakeAccount should not be enriched for unknown provider mistral")
	}
}
