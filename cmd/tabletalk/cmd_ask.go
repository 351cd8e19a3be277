package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tabletalk/internal/agent"
	"tabletalk/internal/semantic"
	"tabletalk/pkg/frame"
)

var askEntities []string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askEntities, "table", "t", nil,
		"restrict the question to these tables or views")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	question := joinArgs(args)
	result, err := eng.agent.Ask(ctx, semantic.QueryContext{
		Query:    question,
		Entities: askEntities,
	})
	if err != nil {
		var exhausted *agent.RetryBudgetExhaustedError
		if errors.As(err, &exhausted) {
			return fmt.Errorf("could not answer after %d attempts:\n%w", len(exhausted.Attempts), err)
		}
		return err
	}

	printResult(cmd, result)
	return nil
}

func joinArgs(args []string) string {
	q := args[0]
	for _, a := range args[1:] {
		q += " " + a
	}
	return q
}

func printResult(cmd *cobra.Command, r *frame.Result) {
	switch r.Kind {
	case frame.TableResult:
		cmd.Println(r.Table.String())
	case frame.ScalarResult:
		cmd.Printf("%v\n", r.Scalar)
	case frame.ChartResult:
		c := r.Chart
		cmd.Printf("%s chart: %s (%s vs %s)\n", c.Kind, c.Title, c.X, strings.Join(c.Y, ", "))
		if c.Source != nil {
			cmd.Println(c.Source.String())
		}
	default:
		cmd.Println(r.String())
	}
}
