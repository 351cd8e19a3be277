package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"tabletalk/pkg/frame"
)

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "total amount", joinArgs([]string{"total", "amount"}))
	assert.Equal(t, "one", joinArgs([]string{"one"}))
}

func capturePrint(r *frame.Result) string {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	printResult(cmd, r)
	return out.String()
}

func TestPrintResult(t *testing.T) {
	table := frame.MustNew(
		frame.Strings("region", "north"),
		frame.Floats("sum_amount", 40),
	)

	assert.Contains(t, capturePrint(frame.NewScalarResult(42.0)), "42")
	assert.Contains(t, capturePrint(frame.NewTableResult(table)), "north")

	chart := capturePrint(frame.NewChartResult(&frame.ChartSpec{
		Kind: "bar", Title: "by region", X: "region", Y: []string{"sum_amount"}, Source: table,
	}))
	assert.Contains(t, chart, "bar chart")
	assert.Contains(t, chart, "region vs sum_amount")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "tabletalk")
}
