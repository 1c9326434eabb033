package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/rapport/internal/model"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show mode, idle time and the current gate decision",
		Args:  cobra.NoArgs,
		Run:   runStatus,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "gaps",
		Short: "Detect what the relationship documents do not cover yet",
		Long:  "Detect knowledge gaps and refresh the gaps.json mirror.",
		Args:  cobra.NoArgs,
		Run:   runGaps,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "preview",
		Short: "Compose the next check-in hint without sending it",
		Args:  cobra.NoArgs,
		Run:   runPreview,
	})
}

func runStatus(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	st, err := svc.Status(cmd.Context())
	if err != nil {
		exitErr("status", err)
	}
	printOut(st, st.Text)
}

func runGaps(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	if err := svc.EnsureDocs(); err != nil {
		exitErr("gaps", err)
	}
	found := svc.Gaps()
	if found == nil {
		found = []model.Gap{}
	}
	printOut(found, func() string {
		if len(found) == 0 {
			return "No gaps.\n"
		}
		var b strings.Builder
		for _, g := range found {
			req := ""
			if g.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "[%s] %s%s\n    %s\n    Ask: %s\n", g.Category, g.Key, req, g.Description, g.Question)
		}
		fmt.Fprintf(&b, "\nMirror: %s\n", svc.Docs().GapMirrorPath())
		return b.String()
	})
}

func runPreview(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()

	p, err := svc.Preview(cmd.Context())
	if err != nil {
		exitErr("preview", err)
	}
	printOut(p, func() string {
		verdict := "would hold"
		if p.Decision.Send {
			verdict = "would send"
		}
		return fmt.Sprintf("Gate: %s (%s)\nContext source: %s\n\n%s", verdict, p.Decision.Reason, orNone(p.Context.Source), p.Hint.Render())
	})
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
