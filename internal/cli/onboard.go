package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/rapport/internal/onboarding"
)

func init() {
	onboard := &cobra.Command{
		Use:   "onboard",
		Short: "First-contact introduction, one question at a time",
		Long: "Walk a new user through a short introduction and a handful of questions. " +
			"Answers go into USER.md and RELATIONAL.md; progress is kept next to the idle state.",
	}
	onboard.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Run the sequence interactively on the terminal",
			Args:  cobra.NoArgs,
			Run:   runOnboardStart,
		},
		&cobra.Command{
			Use:   "next",
			Short: "Print what to say next (pending messages and the pending question)",
			Args:  cobra.NoArgs,
			Run:   runOnboardNext,
		},
		&cobra.Command{
			Use:   "answer [text]",
			Short: "Record the answer to the pending question (positional arg or stdin), then print what comes next",
			Run:   runOnboardAnswer,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show onboarding progress and collected answers",
			Args:  cobra.NoArgs,
			Run:   runOnboardStatus,
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget onboarding progress (documents are kept)",
			Args:  cobra.NoArgs,
			Run:   runOnboardReset,
		},
	)
	RootCmd.AddCommand(onboard)
}

func openFlow() (*onboarding.Flow, func()) {
	svc := openService()
	flow, err := svc.Onboarding()
	if err != nil {
		svc.Close()
		exitErr("onboarding", err)
	}
	return flow, func() { svc.Close() }
}

func printSteps(steps []onboarding.Step) {
	printOut(steps, func() string {
		if len(steps) == 0 {
			return "Onboarding complete.\n"
		}
		var b strings.Builder
		for _, s := range steps {
			b.WriteString(s.Text + "\n")
		}
		return b.String()
	})
}

func runOnboardStart(cmd *cobra.Command, args []string) {
	flow, done := openFlow()
	defer done()

	in := bufio.NewScanner(os.Stdin)
	for {
		steps, err := flow.Next()
		if err != nil {
			exitErr("onboarding", err)
		}
		if len(steps) == 0 {
			fmt.Println("[onboarding complete]")
			return
		}
		for _, s := range steps {
			fmt.Printf("Agent: %s\n", s.Text)
		}
		if steps[len(steps)-1].Kind != onboarding.Question {
			continue
		}
		fmt.Print("You: ")
		if !in.Scan() {
			fmt.Println("\n[interrupted]")
			return
		}
		if err := flow.Answer(in.Text()); err != nil {
			exitErr("onboarding", err)
		}
		fmt.Println()
	}
}

func runOnboardNext(cmd *cobra.Command, args []string) {
	flow, done := openFlow()
	defer done()

	steps, err := flow.Next()
	if err != nil {
		exitErr("onboarding", err)
	}
	printSteps(steps)
}

func runOnboardAnswer(cmd *cobra.Command, args []string) {
	flow, done := openFlow()
	defer done()

	if err := flow.Answer(readInput(args)); err != nil {
		exitErr("onboarding", err)
	}
	steps, err := flow.Next()
	if err != nil {
		exitErr("onboarding", err)
	}
	printSteps(steps)
}

func runOnboardStatus(cmd *cobra.Command, args []string) {
	flow, done := openFlow()
	defer done()

	st, err := flow.Status()
	if err != nil {
		exitErr("onboarding", err)
	}
	printOut(st, st.Text)
}

func runOnboardReset(cmd *cobra.Command, args []string) {
	flow, done := openFlow()
	defer done()

	if err := flow.Reset(); err != nil {
		exitErr("onboarding", err)
	}
	fmt.Println("onboarding reset")
}
