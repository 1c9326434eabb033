package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/rapport/internal/rapport"
)

func init() {
	touch := &cobra.Command{
		Use:   "touch [text]",
		Short: "Record a completed conversation turn",
		Long:  "Turn-completion hook. Advances the last-interaction clock and indexes the turn text (positional arg or stdin) when given.",
		Run:   runTouch,
	}
	touch.Flags().String("role", "human", "Speaker of the text: human or agent")
	RootCmd.AddCommand(touch)

	analyze := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a finished conversation",
		Long: "End-of-conversation hook. Reads a transcript from the file or stdin (\"Human:\"/\"Agent:\" lines or a JSON array " +
			"of {role, text}) and routes significant moments into the living documents.",
		Args: cobra.MaximumNArgs(1),
		Run:  runAnalyze,
	}
	RootCmd.AddCommand(analyze)

	RootCmd.AddCommand(&cobra.Command{
		Use:   "inject",
		Short: "Print the relationship context for the next turn",
		Long:  "Context injection hook. Prints nothing when there is nothing to add.",
		Args:  cobra.NoArgs,
		Run:   runInject,
	})

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Start the relationship over",
		Long:  "Restore idle-state defaults and rewrite RELATIONAL.md, USER.md and SOUL.md from their templates.",
		Args:  cobra.NoArgs,
		Run:   runReset,
	}
	reset.Flags().Bool("purge-index", false, "Also delete this relationship's indexed turns")
	reset.Flags().Bool("yes", false, "Skip the confirmation check")
	RootCmd.AddCommand(reset)
}

func runTouch(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")

	svc := openService()
	defer svc.Close()

	st, err := svc.Touch(cmd.Context(), rapport.Turn{Role: role, Text: strings.TrimSpace(readInput(args))})
	if err != nil {
		exitErr("touch", err)
	}
	printOut(st, func() string {
		return fmt.Sprintf("last interaction %s\n", st.LastInteraction.Format("2006-01-02 15:04:05Z07:00"))
	})
}

func runAnalyze(cmd *cobra.Command, args []string) {
	var input string
	if len(args) == 1 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			exitErr("read transcript", err)
		}
		input = string(b)
	} else {
		input = readInput(nil)
	}

	t, err := rapport.ParseTranscript(strings.NewReader(input))
	if err != nil {
		exitErr("analyze", err)
	}
	if len(t) == 0 {
		exitErr("analyze", fmt.Errorf("transcript is empty"))
	}

	svc := openService()
	defer svc.Close()

	report, gaps, err := svc.EndConversation(cmd.Context(), t)
	if err != nil {
		// documents that could be written were; report the rest
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	out := struct {
		Report interface{} `json:"report"`
		Gaps   interface{} `json:"gaps"`
	}{report, gaps}
	printOut(out, func() string {
		return fmt.Sprintf("moments %d, relational %d, identity %d, tasks %d, threads %d, gaps %d\n",
			len(report.Moments), len(report.Relational), len(report.Identity), len(report.Tasks), len(report.Threads), len(gaps))
	})
}

func runInject(cmd *cobra.Command, args []string) {
	svc := openService()
	defer svc.Close()
	fmt.Print(svc.Inject(cmd.Context()))
}

func runReset(cmd *cobra.Command, args []string) {
	purge, _ := cmd.Flags().GetBool("purge-index")
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("reset", fmt.Errorf("this overwrites the living documents; pass --yes to confirm"))
	}

	svc := openService()
	defer svc.Close()

	if err := svc.Reset(cmd.Context(), purge); err != nil {
		exitErr("reset", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", svc.Config().RelationshipID)
}
