package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cohatch/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Matcher     Matcher
	History     History // optional; matches://recent returns [] when nil
	DefaultTopN int
	Version     string
}

// NewMCPServer creates an MCP server with the matching tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.DefaultTopN <= 0 {
		deps.DefaultTopN = 3
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := server.NewMCPServer(
		"cohatch",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cohatch finds co-founder candidates whose profiles are semantically closest to a given profile."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("match_cofounders",
			mcp.WithDescription("Find the profiles in the co-founder pool most similar to the given profile."),
			mcp.WithString("bio", mcp.Description("Free-text biography of the person looking for a co-founder")),
			mcp.WithString("name", mcp.Description("Name of the person")),
			mcp.WithString("industry", mcp.Description("Industry or sphere")),
			mcp.WithString("location", mcp.Description("City or region")),
			mcp.WithArray("skills", mcp.Description("Skill names"), mcp.WithStringItems()),
			mcp.WithNumber("experience", mcp.Description("Years of experience")),
			mcp.WithString("education", mcp.Description("Highest degree or school")),
			mcp.WithNumber("top_n", mcp.Description(fmt.Sprintf("Number of matches to return, 0 to %d (default %d)", MaxTopN, deps.DefaultTopN))),
		),
		mcpMatchCofounders(deps),
	)

	s.AddTool(
		mcp.NewTool("reload_pool",
			mcp.WithDescription("Reload the co-founder pool from its configured source and re-embed every profile."),
		),
		mcpReloadPool(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"pool://status",
			"Pool Status",
			mcp.WithResourceDescription("Load state and size of the co-founder pool"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePoolStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"matches://recent",
			"Recent Matches",
			mcp.WithResourceDescription("Last 10 match queries with their top result"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpMatchCofounders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topN := req.GetInt("top_n", deps.DefaultTopN)
		if topN < 0 || topN > MaxTopN {
			return mcpError(fmt.Sprintf("top_n must be between 0 and %d", MaxTopN)), nil
		}

		// Missing fields take the same defaults as pool rows.
		q := profile.Query{
			Name:      req.GetString("name", ""),
			Bio:       req.GetString("bio", ""),
			Industry:  req.GetString("industry", ""),
			Location:  req.GetString("location", ""),
			Education: req.GetString("education", ""),
		}
		if _, ok := req.GetArguments()["experience"]; ok {
			exp := req.GetInt("experience", 0)
			q.Experience = &exp
		}
		for _, s := range req.GetStringSlice("skills", nil) {
			q.Skills = append(q.Skills, profile.Skill{Name: s})
		}

		res, err := deps.Matcher.Match(ctx, q, topN)
		if err != nil {
			return mcpError(fmt.Sprintf("match failed: %v", err)), nil
		}

		b, err := json.Marshal(toResponse(res))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal matches: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReloadPool(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		info, err := deps.Matcher.Reload(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("reload failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Pool reloaded: %d profiles, %d dimensions.", info.Profiles, info.Dim)), nil
	}
}

func mcpResourcePoolStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status := map[string]any{
			"state":    deps.Matcher.State().String(),
			"profiles": 0,
		}
		if info, ok := deps.Matcher.Info(); ok {
			status["profiles"] = info.Profiles
			status["dim"] = info.Dim
			status["loaded_at"] = info.LoadedAt.Format(time.RFC3339)
		}

		b, err := json.Marshal(status)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pool status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type matchSummary struct {
			ID        string  `json:"id"`
			CreatedAt string  `json:"created_at"`
			Query     string  `json:"query"`
			Top       string  `json:"top,omitempty"`
			TopScore  float64 `json:"top_score,omitempty"`
		}

		summaries := []matchSummary{}
		if deps.History != nil {
			recs, err := deps.History.RecentMatches(ctx, 10)
			if err != nil {
				return nil, fmt.Errorf("failed to get recent matches: %w", err)
			}
			for _, rec := range recs {
				query := rec.QueryText
				if utf8.RuneCountInString(query) > 200 {
					runes := []rune(query)
					query = string(runes[:200]) + "..."
				}
				s := matchSummary{
					ID:        rec.ID,
					CreatedAt: rec.CreatedAt.Format(time.RFC3339),
					Query:     query,
				}
				if len(rec.Results) > 0 {
					s.Top = rec.Results[0].Profile.Name
					s.TopScore = rec.Results[0].Score
				}
				summaries = append(summaries, s)
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal matches: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
