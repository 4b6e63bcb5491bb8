package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/retrieval"
	"github.com/kalambet/cohatch/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	if s := NewMCPServer(MCPDeps{Matcher: &mockMatcher{}}); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_MatchCofounders(t *testing.T) {
	m := &mockMatcher{}
	handler := mcpMatchCofounders(MCPDeps{Matcher: m, DefaultTopN: 3})

	req := makeCallToolRequest("match_cofounders", map[string]interface{}{
		"bio":      "Ex-banker building a lending startup",
		"industry": "Fintech",
		"skills":   []interface{}{"Sales", "Finance"},
		"top_n":    float64(1),
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp MatchResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Name != "Ada" {
		t.Errorf("matches = %+v", resp.Matches)
	}
	if m.gotTopN != 1 {
		t.Errorf("topN = %d, want 1", m.gotTopN)
	}
	if len(m.gotQuery.Skills) != 2 || m.gotQuery.Skills[1].Name != "Finance" {
		t.Errorf("skills = %+v", m.gotQuery.Skills)
	}
}

func TestMCPTool_MatchCofounders_OptionalFields(t *testing.T) {
	m := &mockMatcher{}
	handler := mcpMatchCofounders(MCPDeps{Matcher: m, DefaultTopN: 3})

	result, err := handler(context.Background(), makeCallToolRequest("match_cofounders", map[string]interface{}{
		"industry":   "Fintech",
		"experience": float64(7),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", toolText(t, result))
	}
	if m.gotQuery.Bio != "" || m.gotQuery.Industry != "Fintech" {
		t.Errorf("query = %+v", m.gotQuery)
	}
	if m.gotQuery.Experience == nil || *m.gotQuery.Experience != 7 {
		t.Errorf("experience = %v, want 7", m.gotQuery.Experience)
	}
	if m.gotTopN != 3 {
		t.Errorf("topN = %d, want default 3", m.gotTopN)
	}
}

func TestMCPTool_MatchCofounders_TopNRange(t *testing.T) {
	tests := []struct {
		topN    float64
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{MaxTopN, false},
		{MaxTopN + 1, true},
	}
	for _, tc := range tests {
		m := &mockMatcher{}
		handler := mcpMatchCofounders(MCPDeps{Matcher: m, DefaultTopN: 3})
		result, err := handler(context.Background(), makeCallToolRequest("match_cofounders", map[string]interface{}{
			"bio":   "x",
			"top_n": tc.topN,
		}))
		if err != nil {
			t.Fatalf("top_n=%v: unexpected error: %v", tc.topN, err)
		}
		if result.IsError != tc.wantErr {
			t.Errorf("top_n=%v: IsError = %v, want %v", tc.topN, result.IsError, tc.wantErr)
		}
		if !tc.wantErr && m.gotTopN != int(tc.topN) {
			t.Errorf("top_n=%v: matcher got %d", tc.topN, m.gotTopN)
		}
	}
}

func TestMCPTool_MatchCofounders_Error(t *testing.T) {
	handler := mcpMatchCofounders(MCPDeps{Matcher: &mockMatcher{matchErr: retrieval.ErrEmptyPool}, DefaultTopN: 3})

	result, err := handler(context.Background(), makeCallToolRequest("match_cofounders", map[string]interface{}{"bio": "x"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || !strings.Contains(toolText(t, result), "empty") {
		t.Fatalf("result = %+v, want empty pool error", result)
	}
}

func TestMCPTool_ReloadPool(t *testing.T) {
	handler := mcpReloadPool(MCPDeps{Matcher: &mockMatcher{}})
	result, err := handler(context.Background(), makeCallToolRequest("reload_pool", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError || !strings.Contains(toolText(t, result), "2 profiles") {
		t.Errorf("result = %s", toolText(t, result))
	}

	handler = mcpReloadPool(MCPDeps{Matcher: &mockMatcher{reload: errors.New("no csv")}})
	result, _ = handler(context.Background(), makeCallToolRequest("reload_pool", nil))
	if !result.IsError {
		t.Error("expected error result")
	}
}

func TestMCPResource_PoolStatus(t *testing.T) {
	handler := mcpResourcePoolStatus(MCPDeps{Matcher: &mockMatcher{pool: loadedPool(t, 4)}})

	contents, err := handler(context.Background(), makeReadResourceRequest("pool://status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var status struct {
		State    string `json:"state"`
		Profiles int    `json:"profiles"`
		Dim      int    `json:"dim"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &status); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if status.State != "loaded" || status.Profiles != 4 || status.Dim != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveMatch(context.Background(), storage.MatchRecord{
		ID:        "m-1",
		CreatedAt: time.Now().UTC(),
		Query:     profile.Profile{Name: "Sam", Skills: []profile.Skill{}},
		QueryText: strings.Repeat("long query ", 40),
		TopN:      1,
		Results:   []retrieval.Match{{Profile: profile.Profile{Name: "Ada"}, Score: 0.8}},
	})
	if err != nil {
		t.Fatalf("saving match: %v", err)
	}

	handler := mcpResourceRecent(MCPDeps{Matcher: &mockMatcher{}, History: store})
	contents, err := handler(context.Background(), makeReadResourceRequest("matches://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)

	var summaries []struct {
		ID    string `json:"id"`
		Query string `json:"query"`
		Top   string `json:"top"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Top != "Ada" {
		t.Fatalf("summaries = %+v", summaries)
	}
	if !strings.HasSuffix(summaries[0].Query, "...") {
		t.Errorf("long query not truncated: %q", summaries[0].Query)
	}
}

func TestMCPResource_Recent_NoHistory(t *testing.T) {
	handler := mcpResourceRecent(MCPDeps{Matcher: &mockMatcher{}})
	contents, err := handler(context.Background(), makeReadResourceRequest("matches://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tc := contents[0].(mcp.TextResourceContents); tc.Text != "[]" {
		t.Errorf("text = %q, want []", tc.Text)
	}
}
