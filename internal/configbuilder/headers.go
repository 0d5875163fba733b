package configbuilder

import (
	"encoding/json"
	"strings"
)

// portkeyHeaderPrefix is the header family every per-provider field in this
// package reads from: a camelCase field name "resourceName" is carried on
// the wire as "x-portkey-resource-name" (kebabCase, prefixed).
const portkeyHeaderPrefix = "x-portkey-"

// stripBearer removes a leading "Bearer " from an Authorization header
// value, mirroring how the provider clients in providers/*.go accept either
// a raw key or a full Authorization header value.
func stripBearer(v string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(v, prefix) {
		return v[len(prefix):]
	}
	return v
}

// headerField reads the x-portkey- header for a given camelCase field name.
func headerField(h map[string]string, field string) (string, bool) {
	v, ok := h[portkeyHeaderPrefix+kebabCase(field)]
	return v, ok && v != ""
}

// azureHeaderFields, awsHeaderFields and vertexHeaderFields list the
// camelCase field names each provider family may populate via individual
// per-provider headers (SPEC_FULL.md §4.1.1's provider enrichment table).
var azureHeaderFields = []string{
	"resourceName", "deploymentId", "apiVersion", "azureAdToken", "azureAuthMode",
	"azureManagedClientId", "azureEntraClientId", "azureEntraClientSecret",
	"azureEntraTenantId", "azureModelName", "openaiBeta",
	"azureEndpointName", "azureFoundryUrl",
}

var awsHeaderFields = []string{
	"awsAccessKeyId", "awsSecretAccessKey", "awsSessionToken", "awsRegion",
	"awsRoleArn", "awsAuthType", "awsExternalId", "awsS3Bucket", "awsS3ObjectKey",
	"awsBedrockModel", "awsServerSideEncryption", "awsServerSideEncryptionKmsKeyId",
	"amznSagemakerCustomAttributes", "amznSagemakerTargetModel", "amznSagemakerTargetVariant",
	"amznSagemakerTargetContainerHostname", "amznSagemakerInferenceId",
	"amznSagemakerEnableExplanations", "amznSagemakerInferenceComponent",
	"amznSagemakerSessionId", "amznSagemakerModelName", "workersAiAccountId",
}

var vertexHeaderFields = []string{
	"vertexProjectId", "vertexRegion", "vertexStorageBucketName", "filename",
	"vertexModelName", "vertexBatchEndpoint",
}

var openaiHeaderFields = []string{"openaiOrganization", "openaiProject", "openaiBeta"}
var anthropicHeaderFields = []string{"anthropicBeta", "anthropicVersion"}
var huggingfaceHeaderFields = []string{"huggingfaceBaseUrl"}
var stabilityHeaderFields = []string{"stabilityClientId", "stabilityClientUserId", "stabilityClientVersion"}
var fireworksHeaderFields = []string{"fireworksAccountId", "fireworksFileLength"}
var cortexHeaderFields = []string{"snowflakeAccount"}

// knownEnrichmentProviders is the dispatch set named in SPEC_FULL.md §4.1.1;
// any provider outside this set is "unknown" and only picks up
// mistralFimCompletion, per the same paragraph.
var knownEnrichmentProviders = map[string]struct{}{
	"azure-openai": {}, "bedrock": {}, "sagemaker": {}, "workers-ai": {},
	"google-vertex-ai": {}, "azure-ai-inference": {}, "openai": {}, "anthropic": {},
	"huggingface": {}, "stability-ai": {}, "fireworks-ai": {}, "cortex": {},
}

// providerFamily maps a provider slug to the provider-specific header field
// list that applies to it, per SPEC_FULL.md §4.1's dispatch table.
func providerFamily(provider string) []string {
	switch provider {
	case "azure-openai", "azure-ai-inference":
		return azureHeaderFields
	case "bedrock", "sagemaker", "workers-ai":
		return awsHeaderFields
	case "google-vertex-ai":
		return vertexHeaderFields
	case "openai":
		return openaiHeaderFields
	case "anthropic":
		return anthropicHeaderFields
	case "huggingface":
		return huggingfaceHeaderFields
	case "stability-ai":
		return stabilityHeaderFields
	case "fireworks-ai":
		return fireworksHeaderFields
	case "cortex":
		return cortexHeaderFields
	default:
		return nil
	}
}

// enrichFromHeaders reads the provider-specific header family for provider
// and returns the camelCase fields it found, plus (for google-vertex-ai)
// the parsed vertexServiceAccountJson blob, parsed-or-nil per §4.1 step 1.
func enrichFromHeaders(provider string, h map[string]string) map[string]any {
	out := map[string]any{}
	for _, field := range providerFamily(provider) {
		if v, ok := headerField(h, field); ok {
			out[field] = v
		}
	}
	if provider == "google-vertex-ai" {
		if raw, ok := headerField(h, "vertexServiceAccountJson"); ok {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
				out["vertexServiceAccountJson"] = parsed
			} else {
				out["vertexServiceAccountJson"] = nil
			}
		}
	}
	// Unknown provider: no enrichment except mistralFimCompletion, per
	// SPEC_FULL.md §4.1.1's closing sentence.
	if _, known := knownEnrichmentProviders[provider]; !known {
		if v, ok := headerField(h, "mistralFimCompletion"); ok {
			out["mistralFimCompletion"] = v
		}
	}
	return out
}
