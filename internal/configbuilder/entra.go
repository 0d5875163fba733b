package configbuilder

import (
	"context"
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"golang.org/x/oauth2/clientcredentials"
)

// entraTokenURLFormat follows config_load.go's Azure resource-name
// templating convention for endpoint construction.
const entraTokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// ResolveEntraToken pre-fetches an Azure Entra ID OAuth2 access token for a
// leaf target whose azureAuthMode is "entra" (SPEC_FULL.md §4.1 step 4),
// caching it on the target's AzureConfig so the request processor never has
// to perform the token dance itself.
//
// Grounded in golang.org/x/oauth2's use elsewhere for provider credential
// exchange; here via the client-credentials grant, the flow Entra ID
// service principals use.
func ResolveEntraToken(ctx context.Context, t *engine.Target) error {
	if t.Azure == nil || t.Azure.AzureAuthMode != "entra" {
		return nil
	}
	az := t.Azure
	if az.AzureEntraClientID == "" || az.AzureEntraClientSecret == "" || az.AzureEntraTenantID == "" {
		return fmt.Errorf("configbuilder: entra auth mode requires clientId, clientSecret and tenantId")
	}

	cfg := clientcredentials.Config{
		ClientID:     az.AzureEntraClientID,
		ClientSecret: az.AzureEntraClientSecret,
		TokenURL:     fmt.Sprintf(entraTokenURLFormat, az.AzureEntraTenantID),
		Scopes:       []string{"https://cognitiveservices.azure.com/.default"},
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("configbuilder: entra token exchange failed: %w", err)
	}
	az.SetCachedEntraToken(tok.AccessToken)
	return nil
}

// ResolveEntraTokens walks the tree, resolving Entra tokens for every leaf
// that needs one. Non-entra leaves are left untouched; the walk stops at
// the first hard failure so a misconfigured Azure target fails the request
// up front rather than at execution time.
func ResolveEntraTokens(ctx context.Context, t *engine.Target) error {
	if t.IsLeaf() {
		return ResolveEntraToken(ctx, t)
	}
	for i := range t.Targets {
		if err := ResolveEntraTokens(ctx, &t.Targets[i]); err != nil {
			return err
		}
	}
	return nil
}
