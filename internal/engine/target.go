// Package engine holds the routing-tree data model shared by the target
// resolver, the strategies, and the request processor (SPEC_FULL.md §3).
//
// It is a leaf package on purpose: it imports nothing from internal/resolver,
// internal/strategies, or internal/processor, so all three can import it
// without creating an import cycle. The root package (aigateway) re-exports
// these types as aliases so existing config files and call sites keep
// compiling unchanged.
package engine

import "time"

// StrategyMode represents the routing strategy mode of a tree node.
type StrategyMode string

// StrategyMode constants define the supported routing strategies.
const (
	ModeSingle      StrategyMode = "single"
	ModeFallback    StrategyMode = "fallback"
	ModeLoadBalance StrategyMode = "loadbalance"
	ModeConditional StrategyMode = "conditional"
)

// StrategyConfig defines the routing strategy of a tree node.
type StrategyConfig struct {
	Mode StrategyMode `json:"mode" yaml:"mode"`
	// OnStatusCodes, when set, is the list of upstream status codes the
	// fallback strategy treats as "keep trying"; a child response with any
	// other status (or no list at all combined with resp.ok) stops the walk.
	OnStatusCodes []int `json:"on_status_codes,omitempty" yaml:"on_status_codes,omitempty"`
	// Conditions drives the conditional strategy.
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Condition represents a single conditional-routing rule. Query is a small
// expression evaluated by internal/condition against {metadata, params};
// the legacy Key/Value form (Key="model"/"model_prefix") is still honored
// for configs predating the expression grammar.
type Condition struct {
	Key           string `json:"key,omitempty" yaml:"key,omitempty"`
	Value         string `json:"value,omitempty" yaml:"value,omitempty"`
	Query         string `json:"query,omitempty" yaml:"query,omitempty"`
	TargetKey     string `json:"target_key,omitempty" yaml:"target_key,omitempty"`
	OriginalIndex int    `json:"original_index,omitempty" yaml:"original_index,omitempty"`
}

// RetryConfig defines retry behavior for a leaf target.
type RetryConfig struct {
	Attempts            int   `json:"attempts" yaml:"attempts"`
	OnStatusCodes       []int `json:"on_status_codes,omitempty" yaml:"on_status_codes,omitempty"`
	UseRetryAfterHeader bool  `json:"use_retry_after_header,omitempty" yaml:"use_retry_after_header,omitempty"`
}

// CacheConfig defines response caching behavior for a leaf target.
type CacheConfig struct {
	Mode   string        `json:"mode,omitempty" yaml:"mode,omitempty"` // "simple", "semantic", ...
	TTL    time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	MaxAge time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// CircuitBreakerConfig configures the circuit breaker guarding a target subtree.
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int    `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Timeout          string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// OnStatusCodes lists upstream statuses treated as failures for breaker purposes.
	OnStatusCodes []int `json:"on_status_codes,omitempty" yaml:"on_status_codes,omitempty"`
}

// Check is a single guardrail/mutator assertion inside a canonical HookConfig.
type Check struct {
	ID         string         `json:"id" yaml:"id"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	IsEnabled  *bool          `json:"is_enabled,omitempty" yaml:"is_enabled,omitempty"`
}

// HookConfig is the canonical hook object shape consumed by the hook
// runtime (internal/hooks), produced either directly by config authors or
// by expanding guardrail/mutator shorthand (internal/hookshorthand).
type HookConfig struct {
	ID                 string  `json:"id,omitempty" yaml:"id,omitempty"`
	Type               string  `json:"type,omitempty" yaml:"type,omitempty"` // "input" | "output"
	GuardrailVersionID string  `json:"guardrail_version_id,omitempty" yaml:"guardrail_version_id,omitempty"`
	Deny               bool    `json:"deny,omitempty" yaml:"deny,omitempty"`
	Async              bool    `json:"async,omitempty" yaml:"async,omitempty"`
	OnFail             any     `json:"on_fail,omitempty" yaml:"on_fail,omitempty"`
	OnSuccess          any     `json:"on_success,omitempty" yaml:"on_success,omitempty"`
	Checks             []Check `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// Target is a node in the routing tree: either an inner strategy node with
// Targets set, or a leaf provider node. A node with Strategy.Mode set and a
// non-empty Targets list is always treated as an inner node; leaf fields on
// an inner node only serve as an inheritance source for its children.
type Target struct {
	Strategy *StrategyConfig `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Targets  []Target        `json:"targets,omitempty" yaml:"targets,omitempty"`

	// Leaf identity.
	Provider   string `json:"provider,omitempty" yaml:"provider,omitempty"`
	VirtualKey string `json:"virtual_key,omitempty" yaml:"virtual_key,omitempty"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Inheritable configuration (mirrors InheritedConfig).
	OverrideParams map[string]any `json:"override_params,omitempty" yaml:"override_params,omitempty"`
	Retry          *RetryConfig   `json:"retry,omitempty" yaml:"retry,omitempty"`
	Cache          *CacheConfig   `json:"cache,omitempty" yaml:"cache,omitempty"`
	RequestTimeout time.Duration  `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	ForwardHeaders []string       `json:"forward_headers,omitempty" yaml:"forward_headers,omitempty"`
	CustomHost     string         `json:"custom_host,omitempty" yaml:"custom_host,omitempty"`

	BeforeRequestHooks []HookConfig `json:"before_request_hooks,omitempty" yaml:"before_request_hooks,omitempty"`
	AfterRequestHooks  []HookConfig `json:"after_request_hooks,omitempty" yaml:"after_request_hooks,omitempty"`

	// Guardrail/mutator shorthand, expanded in place by the Target Resolver.
	InputGuardrails  []map[string]any `json:"input_guardrails,omitempty" yaml:"input_guardrails,omitempty"`
	OutputGuardrails []map[string]any `json:"output_guardrails,omitempty" yaml:"output_guardrails,omitempty"`
	InputMutators    []map[string]any `json:"input_mutators,omitempty" yaml:"input_mutators,omitempty"`
	OutputMutators   []map[string]any `json:"output_mutators,omitempty" yaml:"output_mutators,omitempty"`

	DefaultInputGuardrails  []map[string]any `json:"default_input_guardrails,omitempty" yaml:"default_input_guardrails,omitempty"`
	DefaultOutputGuardrails []map[string]any `json:"default_output_guardrails,omitempty" yaml:"default_output_guardrails,omitempty"`

	StrictOpenAiCompliance bool `json:"strict_openai_compliance,omitempty" yaml:"strict_openai_compliance,omitempty"`

	// Weight is used for load balancing. A nil Weight means "not declared"
	// and defaults to 1 at selection time; an explicit 0 is kept distinct
	// from that default so an all-zero sibling set can fail as specified
	// (SPEC_FULL.md §4.5, §8 S3) instead of silently becoming equal-weight.
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Circuit breaker.
	ID       string                `json:"id,omitempty" yaml:"id,omitempty"`
	CBConfig *CircuitBreakerConfig `json:"cb_config,omitempty" yaml:"cb_config,omitempty"`
	IsOpen   bool                  `json:"is_open,omitempty" yaml:"is_open,omitempty"`

	// Provider-specific typed config; at most one is populated, dispatched
	// on Provider. Extras catches fields not yet promoted to a typed field.
	Azure  *AzureConfig   `json:"azure,omitempty" yaml:"azure,omitempty"`
	Aws    *AwsConfig     `json:"aws,omitempty" yaml:"aws,omitempty"`
	Vertex *VertexConfig  `json:"vertex,omitempty" yaml:"vertex,omitempty"`
	Extras map[string]any `json:"extras,omitempty" yaml:"extras,omitempty"`

	// OriginalIndex records the child's position before any circuit-breaker
	// filtering removed siblings; strategies use it to build jsonPath
	// segments that refer to the originally-authored tree, not the
	// filtered one (§4.4 step 4/6 of SPEC_FULL.md).
	OriginalIndex int `json:"-" yaml:"-"`
}

// IsLeaf reports whether the target should be treated as a leaf provider
// node: a node is a strategy node only when Strategy.Mode is set and it
// carries children (the §3 invariant).
func (t Target) IsLeaf() bool {
	return t.Strategy == nil || t.Strategy.Mode == "" || len(t.Targets) == 0
}

// RootFromFlat builds a single-level Target tree from a strategy and a flat
// target list, the shape every config file predating the tree model used.
func RootFromFlat(strategy StrategyConfig, targets []Target) Target {
	s := strategy
	return Target{
		Strategy: &s,
		Targets:  targets,
	}
}

// AzureConfig carries the azure-openai / azure-ai-inference provider header families.
type AzureConfig struct {
	ResourceName           string `json:"resourceName,omitempty" yaml:"resourceName,omitempty"`
	DeploymentID           string `json:"deploymentId,omitempty" yaml:"deploymentId,omitempty"`
	APIVersion             string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	AzureADToken           string `json:"azureAdToken,omitempty" yaml:"azureAdToken,omitempty"`
	AzureAuthMode          string `json:"azureAuthMode,omitempty" yaml:"azureAuthMode,omitempty"`
	AzureManagedClientID   string `json:"azureManagedClientId,omitempty" yaml:"azureManagedClientId,omitempty"`
	AzureEntraClientID     string `json:"azureEntraClientId,omitempty" yaml:"azureEntraClientId,omitempty"`
	AzureEntraClientSecret string `json:"azureEntraClientSecret,omitempty" yaml:"azureEntraClientSecret,omitempty"`
	AzureEntraTenantID     string `json:"azureEntraTenantId,omitempty" yaml:"azureEntraTenantId,omitempty"`
	AzureModelName         string `json:"azureModelName,omitempty" yaml:"azureModelName,omitempty"`
	OpenAIBeta             string `json:"openaiBeta,omitempty" yaml:"openaiBeta,omitempty"`

	// azure-ai-inference family.
	AzureEndpointName string         `json:"azureEndpointName,omitempty" yaml:"azureEndpointName,omitempty"`
	AzureFoundryURL    string         `json:"azureFoundryUrl,omitempty" yaml:"azureFoundryUrl,omitempty"`
	AzureExtraParams   map[string]any `json:"azureExtraParams,omitempty" yaml:"azureExtraParams,omitempty"`

	// cachedEntraToken holds the pre-resolved OAuth2 token when
	// azureAuthMode=="entra" (populated by internal/configbuilder).
	cachedEntraToken string
}

// CachedEntraToken returns the pre-resolved Entra ID OAuth2 token, if any.
func (a *AzureConfig) CachedEntraToken() string { return a.cachedEntraToken }

// SetCachedEntraToken stores a pre-resolved Entra ID OAuth2 token.
func (a *AzureConfig) SetCachedEntraToken(tok string) { a.cachedEntraToken = tok }

// AwsConfig carries the bedrock / sagemaker / workers-ai provider header families.
type AwsConfig struct {
	AwsAccessKeyID                  string `json:"awsAccessKeyId,omitempty" yaml:"awsAccessKeyId,omitempty"`
	AwsSecretAccessKey              string `json:"awsSecretAccessKey,omitempty" yaml:"awsSecretAccessKey,omitempty"`
	AwsSessionToken                 string `json:"awsSessionToken,omitempty" yaml:"awsSessionToken,omitempty"`
	AwsRegion                       string `json:"awsRegion,omitempty" yaml:"awsRegion,omitempty"`
	AwsRoleArn                      string `json:"awsRoleArn,omitempty" yaml:"awsRoleArn,omitempty"`
	AwsAuthType                     string `json:"awsAuthType,omitempty" yaml:"awsAuthType,omitempty"`
	AwsExternalID                   string `json:"awsExternalId,omitempty" yaml:"awsExternalId,omitempty"`
	AwsS3Bucket                     string `json:"awsS3Bucket,omitempty" yaml:"awsS3Bucket,omitempty"`
	AwsS3ObjectKey                  string `json:"awsS3ObjectKey,omitempty" yaml:"awsS3ObjectKey,omitempty"`
	AwsBedrockModel                 string `json:"awsBedrockModel,omitempty" yaml:"awsBedrockModel,omitempty"`
	AwsServerSideEncryption         string `json:"awsServerSideEncryption,omitempty" yaml:"awsServerSideEncryption,omitempty"`
	AwsServerSideEncryptionKMSKeyID string `json:"awsServerSideEncryptionKMSKeyId,omitempty" yaml:"awsServerSideEncryptionKMSKeyId,omitempty"`

	// sagemaker extras.
	AmznSagemakerCustomAttributes        string `json:"amznSagemakerCustomAttributes,omitempty" yaml:"amznSagemakerCustomAttributes,omitempty"`
	AmznSagemakerTargetModel             string `json:"amznSagemakerTargetModel,omitempty" yaml:"amznSagemakerTargetModel,omitempty"`
	AmznSagemakerTargetVariant           string `json:"amznSagemakerTargetVariant,omitempty" yaml:"amznSagemakerTargetVariant,omitempty"`
	AmznSagemakerTargetContainerHostname string `json:"amznSagemakerTargetContainerHostname,omitempty" yaml:"amznSagemakerTargetContainerHostname,omitempty"`
	AmznSagemakerInferenceID             string `json:"amznSagemakerInferenceId,omitempty" yaml:"amznSagemakerInferenceId,omitempty"`
	AmznSagemakerEnableExplanations      string `json:"amznSagemakerEnableExplanations,omitempty" yaml:"amznSagemakerEnableExplanations,omitempty"`
	AmznSagemakerInferenceComponent      string `json:"amznSagemakerInferenceComponent,omitempty" yaml:"amznSagemakerInferenceComponent,omitempty"`
	AmznSagemakerSessionID               string `json:"amznSagemakerSessionId,omitempty" yaml:"amznSagemakerSessionId,omitempty"`
	AmznSagemakerModelName               string `json:"amznSagemakerModelName,omitempty" yaml:"amznSagemakerModelName,omitempty"`

	// workers-ai.
	WorkersAiAccountID string `json:"workersAiAccountId,omitempty" yaml:"workersAiAccountId,omitempty"`
}

// VertexConfig carries the google-vertex-ai provider header family.
type VertexConfig struct {
	VertexProjectID         string         `json:"vertexProjectId,omitempty" yaml:"vertexProjectId,omitempty"`
	VertexRegion            string         `json:"vertexRegion,omitempty" yaml:"vertexRegion,omitempty"`
	VertexStorageBucketName string         `json:"vertexStorageBucketName,omitempty" yaml:"vertexStorageBucketName,omitempty"`
	Filename                string         `json:"filename,omitempty" yaml:"filename,omitempty"`
	VertexModelName         string         `json:"vertexModelName,omitempty" yaml:"vertexModelName,omitempty"`
	VertexBatchEndpoint     string         `json:"vertexBatchEndpoint,omitempty" yaml:"vertexBatchEndpoint,omitempty"`
	VertexServiceAccountJSON map[string]any `json:"vertexServiceAccountJson,omitempty" yaml:"vertexServiceAccountJson,omitempty"`
}
