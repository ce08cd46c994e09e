package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags clears values left behind by an earlier Execute on the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--rules", "../../configs/rulesets.yaml"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPickCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"by value", []string{"pick", "--category", "goals", "--value", "2.35"}, "2025.09-r2 goals combined 2.35: Over 1.5"},
		{"by team rates", []string{"pick", "--category", "goals", "--home", "1.8", "--away", "1.2", "--ruleset", "2025.03-r1"}, "2025.03-r1 goals combined 1.50: Over 1.5"},
		{"null zone", []string{"pick", "--category", "goals", "--value", "2.1", "--ruleset", "2025.09-r2"}, "no pick"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestRulesetsCommand(t *testing.T) {
	out, err := execute(t, "rulesets")
	require.NoError(t, err)
	assert.Contains(t, out, "2025.03-r1")
	assert.Contains(t, out, "2025.09-r2")
}

func TestDevigCommand(t *testing.T) {
	out, err := execute(t, "devig", "1,90", "1.90")
	require.NoError(t, err)
	assert.Contains(t, out, "0.5000")
	assert.Contains(t, out, "margin: 5.26%")

	_, err = execute(t, "devig", "abc", "1.90")
	assert.Error(t, err)
}

func TestModelCommand(t *testing.T) {
	out, err := execute(t, "model", "--category", "goals", "--home", "1.8", "--away", "1.2", "--lines", "2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "poisson")
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "confidence high")
}
