//go:build integration

package adt

import (
	"context"
	"testing"
	"time"

	"github.com/oisee/abap-adt-mcp/pkg/testutil"
)

// getIntegrationClient creates an ADT client for integration tests.
// Loads credentials from .env file or environment variables.
func getIntegrationClient(t *testing.T) *Client {
	env := testutil.RequireSAP(t)

	opts := []Option{
		WithBasicAuth(env.User, env.Password),
		WithClient(env.Client),
		WithLanguage(env.Language),
		WithTimeout(30 * time.Second),
	}
	if env.Insecure {
		opts = append(opts, WithInsecureSkipVerify())
	}

	client := NewClient(NewConfig(env.URL, opts...))
	t.Cleanup(client.Close)
	return client
}

func TestIntegration_SearchObject(t *testing.T) {
	client := getIntegrationClient(t)
	ctx := context.Background()

	results, err := client.SearchObject(ctx, "CL_*", 10)
	if err != nil {
		t.Fatalf("SearchObject failed: %v", err)
	}
	t.Logf("Found %d results", len(results))
}

func TestIntegration_GetProgram(t *testing.T) {
	client := getIntegrationClient(t)
	ctx := context.Background()

	source, err := client.GetProgram(ctx, "SAPMSSY0")
	if err != nil {
		t.Skipf("Could not retrieve SAPMSSY0: %v", err)
	}
	if len(source) == 0 {
		t.Error("Program source is empty")
	}
	t.Logf("Includes: %v", ParseIncludeStatements(source))
}

func TestIntegration_NodeStructure(t *testing.T) {
	client := getIntegrationClient(t)
	ctx := context.Background()

	result, err := client.FetchNodes(ctx, NodeStructureRequest{
		ParentName:       "SAPMSSY0",
		ParentType:       "PROG/P",
		WithDescriptions: true,
	})
	if err != nil {
		t.Fatalf("FetchNodes failed: %v", err)
	}
	for _, n := range result.Children() {
		t.Logf("  %s %s %s (node %s)", n.Kind, n.ObjectType, n.ObjectName, n.NodeID)
	}
	if client.Transport().Session().State() != SessionHolding {
		t.Errorf("session state = %v after a write, want Holding", client.Transport().Session().State())
	}
}

func TestIntegration_GetEnhancements(t *testing.T) {
	client := getIntegrationClient(t)
	ctx := context.Background()

	elements, err := client.GetEnhancements(ctx, KindProgram, "SAPMV45A")
	if err != nil {
		t.Skipf("Could not read enhancements of SAPMV45A: %v", err)
	}
	t.Logf("Found %d enhancements", len(elements))
}
