package configbuilder

import (
	"encoding/json"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// ToTarget decodes a camelCase-normalized config object into an
// engine.Target. Fields excluded from camelCase conversion
// (override_params, conditions, cb_config, vertex_service_account_json, the
// guardrail shorthand lists, ...) already carry the snake_case keys
// their struct tags expect and are JSON round-tripped directly; every other
// field, including the mutator shorthand lists (inputMutators,
// outputMutators), is read explicitly under its camelCase key because
// Target's own JSON tags are snake_case.
func ToTarget(m map[string]any) engine.Target {
	var t engine.Target

	t.Provider, _ = getString(m, "provider")
	t.VirtualKey, _ = getString(m, "virtualKey")
	t.APIKey, _ = getString(m, "apiKey")
	t.CustomHost, _ = getString(m, "customHost")
	t.ID, _ = getString(m, "id")
	t.ForwardHeaders = getStringSlice(m, "forwardHeaders")
	t.StrictOpenAiCompliance, _ = getBool(m, "strictOpenaiCompliance")
	if w, ok := getFloat64(m, "weight"); ok {
		t.Weight = &w
	}
	t.IsOpen, _ = getBool(m, "isOpen")

	if d, ok := getString(m, "requestTimeout"); ok {
		if dur, err := time.ParseDuration(d); err == nil {
			t.RequestTimeout = dur
		}
	}

	// Fields in the pinned exclusion list keep their originally-authored
	// (snake_case) casing, so they decode straight into their snake_case
	// tagged struct via a JSON round trip.
	if v, ok := m["override_params"]; ok {
		if mm, ok := v.(map[string]any); ok {
			t.OverrideParams = mm
		}
	}
	t.CBConfig = decodeInto[engine.CircuitBreakerConfig](m["cb_config"])

	t.InputGuardrails = decodeGuardrailList(m["input_guardrails"])
	t.OutputGuardrails = decodeGuardrailList(m["output_guardrails"])
	t.InputMutators = decodeGuardrailList(m["inputMutators"])
	t.OutputMutators = decodeGuardrailList(m["outputMutators"])
	t.DefaultInputGuardrails = decodeGuardrailList(m["default_input_guardrails"])
	t.DefaultOutputGuardrails = decodeGuardrailList(m["default_output_guardrails"])

	// retry/cache/strategy/targets are not in the exclusion list, so their
	// own keys were camelCased; map them explicitly.
	t.Retry = mapRetry(getMap(m, "retry"))
	t.Cache = mapCache(getMap(m, "cache"))
	t.Strategy = mapStrategy(getMap(m, "strategy"))

	if rawTargets, ok := m["targets"].([]any); ok {
		t.Targets = make([]engine.Target, 0, len(rawTargets))
		for i, rt := range rawTargets {
			if mm, ok := rt.(map[string]any); ok {
				child := ToTarget(mm)
				child.OriginalIndex = i
				t.Targets = append(t.Targets, child)
			}
		}
	}

	if hooks, ok := m["beforeRequestHooks"].([]any); ok {
		t.BeforeRequestHooks = mapHookConfigs(hooks)
	}
	if hooks, ok := m["afterRequestHooks"].([]any); ok {
		t.AfterRequestHooks = mapHookConfigs(hooks)
	}

	mapProviderSpecific(&t, m)

	extras := map[string]any{}
	for k, v := range m {
		if !isKnownTargetKey(k) {
			extras[k] = v
		}
	}
	if len(extras) > 0 {
		t.Extras = extras
	}

	return t
}

func mapRetry(m map[string]any) *engine.RetryConfig {
	if m == nil {
		return nil
	}
	rc := &engine.RetryConfig{}
	rc.Attempts, _ = getIntVal(m, "attempts")
	rc.OnStatusCodes = getIntSlice(m, "onStatusCodes")
	rc.UseRetryAfterHeader, _ = getBool(m, "useRetryAfterHeader")
	return rc
}

func mapCache(m map[string]any) *engine.CacheConfig {
	if m == nil {
		return nil
	}
	cc := &engine.CacheConfig{}
	cc.Mode, _ = getString(m, "mode")
	if d, ok := getString(m, "ttl"); ok {
		if dur, err := time.ParseDuration(d); err == nil {
			cc.TTL = dur
		}
	}
	if d, ok := getString(m, "maxAge"); ok {
		if dur, err := time.ParseDuration(d); err == nil {
			cc.MaxAge = dur
		}
	}
	return cc
}

func mapStrategy(m map[string]any) *engine.StrategyConfig {
	if m == nil {
		return nil
	}
	sc := &engine.StrategyConfig{}
	if mode, ok := getString(m, "mode"); ok {
		sc.Mode = engine.StrategyMode(mode)
	}
	sc.OnStatusCodes = getIntSlice(m, "onStatusCodes")
	if conds, ok := m["conditions"]; ok {
		// conditions is in the exclusion list: decode its snake_case shape
		// directly via a JSON round trip.
		if list := decodeInto[[]engine.Condition](conds); list != nil {
			sc.Conditions = *list
			for i := range sc.Conditions {
				sc.Conditions[i].OriginalIndex = i
			}
		}
	}
	return sc
}

func mapHookConfigs(raw []any) []engine.HookConfig {
	out := make([]engine.HookConfig, 0, len(raw))
	for _, v := range raw {
		mm, ok := v.(map[string]any)
		if !ok {
			continue
		}
		hc := engine.HookConfig{}
		hc.ID, _ = getString(mm, "id")
		hc.Type, _ = getString(mm, "type")
		hc.GuardrailVersionID, _ = getString(mm, "guardrailVersionId")
		hc.Deny, _ = getBool(mm, "deny")
		hc.Async, _ = getBool(mm, "async")
		hc.OnFail = mm["onFail"]
		hc.OnSuccess = mm["onSuccess"]
		if checks, ok := mm["checks"].([]any); ok {
			for _, c := range checks {
				if cm, ok := c.(map[string]any); ok {
					id, _ := getString(cm, "id")
					params, _ := cm["parameters"].(map[string]any)
					hc.Checks = append(hc.Checks, engine.Check{ID: id, Parameters: params})
				}
			}
		}
		out = append(out, hc)
	}
	return out
}

func mapProviderSpecific(t *engine.Target, m map[string]any) {
	switch t.Provider {
	case "azure-openai", "azure-ai-inference":
		t.Azure = decodeInto[engine.AzureConfig](m)
	case "bedrock", "sagemaker", "workers-ai":
		t.Aws = decodeInto[engine.AwsConfig](m)
	case "google-vertex-ai":
		t.Vertex = decodeInto[engine.VertexConfig](m)
	}
}

func decodeGuardrailList(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if mm, ok := item.(map[string]any); ok {
			out = append(out, mm)
		}
	}
	return out
}

// decodeInto JSON round-trips v into a *T, returning nil when v is nil or
// the round trip fails.
func decodeInto[T any](v any) *T {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return &out
}

func getMap(m map[string]any, key string) map[string]any {
	v, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

func getString(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func getBool(m map[string]any, key string) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

func getFloat64(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func getIntVal(m map[string]any, key string) (int, bool) {
	f, ok := getFloat64(m, key)
	return int(f), ok
}

func getStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getIntSlice(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

var knownTargetKeys = map[string]struct{}{
	"provider": {}, "virtualKey": {}, "apiKey": {}, "customHost": {}, "id": {},
	"forwardHeaders": {}, "strictOpenaiCompliance": {}, "weight": {}, "isOpen": {},
	"requestTimeout": {}, "override_params": {}, "cb_config": {}, "targets": {},
	"strategy": {}, "retry": {}, "cache": {}, "beforeRequestHooks": {}, "afterRequestHooks": {},
	"input_guardrails": {}, "output_guardrails": {}, "inputMutators": {}, "outputMutators": {},
	"default_input_guardrails": {}, "default_output_guardrails": {},
}

func isKnownTargetKey(k string) bool {
	if _, ok := knownTargetKeys[k]; ok {
		return true
	}
	switch k {
	case "resourceName", "deploymentId", "apiVersion", "azureAdToken", "azureAuthMode",
		"azureManagedClientId", "azureEntraClientId", "azureEntraClientSecret",
		"azureEntraTenantId", "azureModelName", "openaiBeta", "azureEndpointName",
		"azureFoundryUrl", "azureExtraParams",
		"awsAccessKeyId", "awsSecretAccessKey", "awsSessionToken", "awsRegion",
		"awsRoleArn", "awsAuthType", "awsExternalId", "awsS3Bucket", "awsS3ObjectKey",
		"awsBedrockModel", "awsServerSideEncryption", "awsServerSideEncryptionKmsKeyId",
		"amznSagemakerCustomAttributes", "amznSagemakerTargetModel", "amznSagemakerTargetVariant",
		"amznSagemakerTargetContainerHostname", "amznSagemakerInferenceId",
		"amznSagemakerEnableExplanations", "amznSagemakerInferenceComponent",
		"amznSagemakerSessionId", "amznSagemakerModelName", "workersAiAccountId",
		"vertexProjectId", "vertexRegion", "vertexStorageBucketName", "filename",
		"vertexModelName", "vertexBatchEndpoint", "vertexServiceAccountJson":
		return true
	}
	return false
}
