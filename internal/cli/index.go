package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/rapport/internal/model"
	"github.com/rcliao/rapport/internal/store"
)

func init() {
	index := &cobra.Command{
		Use:   "index",
		Short: "Manage the transcript index",
	}

	put := &cobra.Command{
		Use:   "put [content]",
		Short: "Index text without touching idle state",
		Run:   runIndexPut,
	}
	put.Flags().String("role", "human", "Speaker: human or agent")
	put.Flags().StringP("key", "k", "", "Key (default: turn/<ulid>)")
	put.Flags().StringP("tags", "t", "", "Comma-separated tags")

	export := &cobra.Command{
		Use:   "export",
		Short: "Export this relationship's indexed turns as JSON",
		Args:  cobra.NoArgs,
		Run:   runIndexExport,
	}
	export.Flags().Bool("all", false, "Export every relationship")

	index.AddCommand(put, export,
		&cobra.Command{
			Use:   "import",
			Short: "Import turns from JSON on stdin (the export format)",
			Args:  cobra.NoArgs,
			Run:   runIndexImport,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show index statistics",
			Args:  cobra.NoArgs,
			Run:   runIndexStats,
		},
	)
	RootCmd.AddCommand(index)

	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search this relationship's indexed turns",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}
	search.Flags().IntP("limit", "l", 10, "Max results")
	RootCmd.AddCommand(search)
}

func runIndexPut(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	key, _ := cmd.Flags().GetString("key")
	tagsStr, _ := cmd.Flags().GetString("tags")

	content := strings.TrimSpace(readInput(args))
	if content == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	var tags []string
	for _, t := range strings.Split(tagsStr, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	svc := openService()
	defer svc.Close()

	e, err := svc.Index().Put(cmd.Context(), store.PutParams{
		NS:      svc.Config().RelationshipID,
		Key:     key,
		Role:    role,
		Content: content,
		Tags:    tags,
	})
	if err != nil {
		exitErr("put", err)
	}
	b, _ := json.Marshal(e)
	fmt.Println(string(b))
}

func runIndexExport(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	svc := openService()
	defer svc.Close()

	ns := svc.Config().RelationshipID
	if all {
		ns = ""
	}
	entries, err := svc.Index().ExportAll(cmd.Context(), ns)
	if err != nil {
		exitErr("export", err)
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	b, _ := json.MarshalIndent(entries, "", "  ")
	fmt.Println(string(b))
}

func runIndexImport(cmd *cobra.Command, args []string) {
	var entries []model.Entry
	if err := json.NewDecoder(os.Stdin).Decode(&entries); err != nil {
		exitErr("parse json", err)
	}

	svc := openService()
	defer svc.Close()

	n, err := svc.Index().Import(cmd.Context(), entries)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf("{\"imported\": %d}\n", n)
}

func runIndexStats(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	path := svc.Config().IndexPath()
	st, err := svc.Index().Stats(cmd.Context(), path)
	if err != nil {
		exitErr("stats", err)
	}
	printOut(st, func() string {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s)\n", st.DBPath, humanize.Bytes(uint64(st.DBSizeBytes)))
		fmt.Fprintf(&b, "%s entries, %s chunks\n", humanize.Comma(int64(st.TotalEntries)), humanize.Comma(int64(st.TotalChunks)))
		for _, ns := range st.Namespaces {
			fmt.Fprintf(&b, "  %-20s %6d turns (%d human), latest %s\n", ns.NS, ns.Count, ns.Human, ns.Latest)
		}
		return b.String()
	})
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	svc := openService()
	defer svc.Close()

	results, err := svc.Index().Search(cmd.Context(), store.SearchParams{
		NS:    svc.Config().RelationshipID,
		Query: strings.Join(args, " "),
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	printOut(results, func() string {
		var b strings.Builder
		for _, r := range results {
			text := r.Content
			if r.MatchChunk != nil {
				text = r.MatchChunk.Text
			}
			fmt.Fprintf(&b, "[%s %s %.2f] %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Role, r.Score, text)
		}
		return b.String()
	})
}
