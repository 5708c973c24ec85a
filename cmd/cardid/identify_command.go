package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

func newIdentifyTextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "identify-text <file|->",
		Short: "Rank catalog candidates for recognized card text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTextInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			result := engine.Identifier.IdentifyTextDetailed(services.RecognizedText{FullText: text})
			out := cmd.OutOrStdout()
			printFields(out, result.Fields)
			if len(result.Candidates) == 0 {
				fmt.Fprintln(out, "No candidates")
				return nil
			}
			fmt.Fprintf(out, "Stage: %s\n", result.Stage)
			fmt.Fprintln(out, renderCandidates(result.Candidates))
			return nil
		},
	}
}

func newIdentifyImageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "identify-image <file>",
		Short: "Match a card image against the fingerprint index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			match, err := engine.Identifier.IdentifyImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if match == nil {
				fmt.Fprintln(out, "No match")
				return nil
			}
			name := ""
			if card, ok := engine.Catalog.Card(match.ID); ok {
				name = card.Name
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Distance"},
				[][]string{{match.ID, name, strconv.Itoa(match.Distance)}},
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search catalog names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.ensureEngine()
			if err != nil {
				return err
			}

			result := engine.Catalog.Search(strings.Join(args, " "), limit)
			out := cmd.OutOrStdout()
			if len(result.Cards) == 0 {
				fmt.Fprintln(out, "No cards found")
				return nil
			}
			rows := make([][]string, 0, len(result.Cards))
			for _, card := range result.Cards {
				rows = append(rows, []string{card.ID, card.Name, formatHP(card.HP), card.SetName})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "HP", "Set"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			if result.HasMore {
				fmt.Fprintf(out, "%d more not shown\n", result.TotalCount-len(result.Cards))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	return cmd
}

func readTextInput(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func printFields(out io.Writer, f services.ParsedFields) {
	fmt.Fprintf(out, "Name: %s\n", valueOrDash(f.Name))
	fmt.Fprintf(out, "HP: %s\n", formatHP(f.HP))
	fmt.Fprintf(out, "Set number: %s\n", valueOrDash(f.SetFraction))
	fmt.Fprintf(out, "Attacks: %s\n", valueOrDash(strings.Join(f.Attacks, ", ")))
}

func renderCandidates(candidates []services.ScoredCandidate) string {
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			c.Card.ID,
			c.Card.Name,
			formatHP(c.Card.HP),
			strconv.Itoa(c.Score),
			strings.Join(c.Reasons, "; "),
		})
	}
	return renderTable(
		[]string{"#", "ID", "Name", "HP", "Score", "Reasons"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func formatHP(hp *int) string {
	if hp == nil {
		return "-"
	}
	return strconv.Itoa(*hp)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

