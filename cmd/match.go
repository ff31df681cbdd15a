package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"drivel/pkg/bot"
	"drivel/pkg/config"
	"drivel/pkg/pattern"
)

var matchGroup bool

var matchCmd = &cobra.Command{
	Use:   "match <pattern> <body>",
	Short: "Test a command pattern against a message body",
	Long:  "Compiles a pattern with the configured address prefix and prints the captured parameters for a message body.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault()
		if err != nil {
			return err
		}

		return runMatch(cmd.OutOrStdout(), cfg, args[0], strings.Join(args[1:], " "), matchGroup)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().BoolVarP(&matchGroup, "group", "g", false, "match as a groupchat message")
}

func runMatch(out io.Writer, cfg *config.Config, raw string, body string, group bool) error {
	matcher, err := pattern.Compile(raw)
	if err != nil {
		return err
	}

	engine := bot.NewEngine(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	prefix := engine.DirectPrefix()
	if group {
		prefix = engine.Prefix()
	}

	anchored, err := matcher.Anchor(prefix)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "expression: %s\n", anchored.Regexp())

	params, ok := anchored.Match(body)
	if !ok {
		fmt.Fprintln(out, "no match")
		return nil
	}

	fmt.Fprintln(out, "match")
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s = %q\n", name, params[name])
	}

	return nil
}
