package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cohatch/internal/api"
	"github.com/kalambet/cohatch/internal/config"
	"github.com/kalambet/cohatch/internal/matching"
	"github.com/kalambet/cohatch/internal/profile"
	"github.com/kalambet/cohatch/internal/resume"
	"github.com/kalambet/cohatch/internal/source"
	"github.com/kalambet/cohatch/internal/storage"
)

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find the closest co-founder profiles for a query profile",
	Long: `Find the closest co-founder profiles for a query profile.

Examples:
  cohatch match --bio "Backend engineer, ex-Stripe, into payments" --skills "Go, Postgres"
  cohatch match --resume ./cv.pdf --industry Fintech --top-n 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bio, _ := cmd.Flags().GetString("bio")
		resumePath, _ := cmd.Flags().GetString("resume")
		name, _ := cmd.Flags().GetString("name")
		industry, _ := cmd.Flags().GetString("industry")
		location, _ := cmd.Flags().GetString("location")
		skills, _ := cmd.Flags().GetString("skills")
		topN, _ := cmd.Flags().GetInt("top-n")
		asJSON, _ := cmd.Flags().GetBool("json")

		if bio == "" && resumePath == "" {
			return fmt.Errorf("one of --bio or --resume is required")
		}

		if resumePath != "" {
			text, err := resume.ExtractText(resumePath)
			if errors.Is(err, resume.ErrNoText) {
				return fmt.Errorf("%s contains no extractable text; pass --bio instead", resumePath)
			}
			if err != nil {
				return err
			}
			if bio != "" {
				text = bio + " " + text
			}
			bio = text
		}

		req := buildMatchRequest(name, bio, industry, location, skills, topN)

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		res, err := requestMatches(cmd.Context(), client, req)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printMatches(os.Stdout, res.Matches)
		return nil
	},
}

func init() {
	matchCmd.Flags().String("bio", "", "free-text biography")
	matchCmd.Flags().String("resume", "", "PDF or text resume used as (or appended to) the bio")
	matchCmd.Flags().String("name", "", "your name")
	matchCmd.Flags().String("industry", "", "industry or sphere")
	matchCmd.Flags().String("location", "", "city or region")
	matchCmd.Flags().String("skills", "", "comma-separated skills")
	matchCmd.Flags().Int("top-n", -1, "number of matches (default: server setting)")
	matchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// buildMatchRequest assembles the request body. A negative topN leaves the
// count to the server default.
func buildMatchRequest(name, bio, industry, location, skills string, topN int) api.MatchRequest {
	req := api.MatchRequest{
		Query: profile.Query{
			Name:     name,
			Bio:      bio,
			Industry: industry,
			Location: location,
			Skills:   profile.ParseSkills(skills),
		},
	}
	if topN >= 0 {
		req.TopN = &topN
	}
	return req
}

func requestMatches(ctx context.Context, client *apiClient, req api.MatchRequest) (api.MatchResponse, error) {
	resp, err := client.post(ctx, "/match_cofounders/", req)
	if err != nil {
		return api.MatchResponse{}, err
	}
	var res api.MatchResponse
	if err := decodeJSON(resp, &res); err != nil {
		return api.MatchResponse{}, err
	}
	return res, nil
}

func printMatches(w io.Writer, matches []api.CofounderMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches found.")
		return
	}
	for i, m := range matches {
		fmt.Fprintf(w, "\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("%d. %s", i+1, m.Name)), m.SimilarityScore)
		fmt.Fprintf(w, "  %s · %s\n", m.Industry, m.Location)
		if len(m.Skills) > 0 {
			names := make([]string, len(m.Skills))
			for j, s := range m.Skills {
				names[j] = s.Name
			}
			fmt.Fprintf(w, "  Skills: %s\n", strings.Join(names, ", "))
		}
		bio := []rune(m.Bio)
		if len(bio) > 300 {
			bio = append(bio[:300], []rune("...")...)
		}
		fmt.Fprintf(w, "  %s\n", string(bio))
	}
}

// --- reload ---

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the profile pool on the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Reloading and re-embedding profiles...")
		resp, err := client.post(cmd.Context(), "/pool/reload", nil)
		if err != nil {
			return err
		}

		var info matching.PoolInfo
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		printSuccess("Pool reloaded: %d profiles, %d dimensions", info.Profiles, info.Dim)
		return nil
	},
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Import a profiles CSV into local storage",
	Long: `Import a profiles CSV into local storage, replacing any previous import.

The imported profiles are used as the pool when source.kind is "sqlite".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cmd.Context(), cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		imp, err := importCSV(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}

		printSuccess("Imported %d profiles from %s", imp.RowCount, imp.Source)
		if cfg.Source.Kind != config.SourceSQLite {
			printWarning("source.kind is %q; run `cohatch config set source.kind sqlite` to match against imported profiles", cfg.Source.Kind)
		}
		return nil
	},
}

func importCSV(ctx context.Context, store *storage.Store, path string) (storage.ProfileImport, error) {
	t, err := source.CSVFile{Path: path}.Load(ctx)
	if err != nil {
		return storage.ProfileImport{}, err
	}
	return store.ReplaceProfiles(ctx, t, path)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past match results",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent match queries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/matches?limit=%d", limit))
		if err != nil {
			return err
		}

		var recs []storage.MatchRecord
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No matches recorded.")
			return nil
		}

		for _, rec := range recs {
			fmt.Println(historyLine(rec))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single match result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/matches/"+args[0])
		if err != nil {
			return err
		}

		var rec any
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of matches to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func historyLine(rec storage.MatchRecord) string {
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	top := "-"
	if len(rec.Results) > 0 {
		top = fmt.Sprintf("%s (%.3f)", rec.Results[0].Profile.Name, rec.Results[0].Score)
	}
	query := []rune(rec.QueryText)
	if len(query) > 60 {
		query = append(query[:60], []rune("...")...)
	}
	return fmt.Sprintf("%s  %s  %s  → %s",
		colorize(colorCyan, id),
		rec.CreatedAt.Format("2006-01-02 15:04"),
		string(query),
		top,
	)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show [key|section]",
	Short: "Show current configuration",
	Long: `Show the current configuration. With an argument, show only that key
(e.g. engine.backend) or every key of a section (e.g. engine).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		if len(args) == 1 {
			if keys, err = filterKeys(keys, args[0]); err != nil {
				return err
			}
		}
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

// filterKeys keeps the key named by filter, or every key in the section it
// names.
func filterKeys(keys []config.KeyInfo, filter string) ([]config.KeyInfo, error) {
	var out []config.KeyInfo
	for _, k := range keys {
		if k.Key == filter || strings.HasPrefix(k.Key, filter+".") {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown config key %q (valid keys: %s)", filter, strings.Join(config.ValidKeys(), ", "))
	}
	return out, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
