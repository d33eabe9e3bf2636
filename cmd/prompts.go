package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Yates-Labs/respin/internal/orchestrator"
	"github.com/Yates-Labs/respin/internal/prompts"
	"github.com/spf13/cobra"
)

var initialScore float64

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and extend the rewriting prompt catalog",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts with their learned scores",
	Long: `List every prompt in the catalog, best score first.

Prompts scoring below the exclusion threshold are marked; they are skipped by
the selector until their score recovers.`,
	Args: cobra.NoArgs,
	RunE: runPromptsList,
}

var promptsAddCmd = &cobra.Command{
	Use:   "add NAME TEMPLATE",
	Short: "Add a rewriting prompt",
	Long: `Add a named rewriting instruction to the catalog. The chapter text is
appended to the template when it is used.

Example:
  respin prompts add terse_v1 "Rewrite the following text in short, plain sentences:"`,
	Args: cobra.ExactArgs(2),
	RunE: runPromptsAdd,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd, promptsAddCmd)
	promptsAddCmd.Flags().Float64Var(&initialScore, "score", 0, "Initial score")
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	store, err := orchestrator.NewPromptStore(appConfig, logger)
	if err != nil {
		return err
	}
	printCatalog(cmd.OutOrStdout(), store.Snapshot(), store.Bounds().ExcludeThreshold)
	return nil
}

func printCatalog(out io.Writer, catalog prompts.Catalog, threshold float64) {
	if len(catalog) == 0 {
		fmt.Fprintln(out, "No prompts in catalog")
		return
	}

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := catalog[names[i]], catalog[names[j]]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return names[i] < names[j]
	})

	t := table{out: out, columns: []column{
		{title: "PROMPT", width: 30, color: nameColor},
		{title: "SCORE", width: 9, color: numberColor, numeric: true},
		{title: "USES", width: 7, color: numberColor, numeric: true},
		{title: "ORIGIN", width: 11, color: textColor},
		{title: "STATUS", width: 10, color: textColor},
	}}
	t.header()

	excluded := 0
	for _, name := range names {
		rec := catalog[name]
		status := "active"
		if rec.Score < threshold {
			status = "excluded"
			excluded++
		}
		t.row(name, fmt.Sprintf("%.2f", rec.Score), fmt.Sprintf("%d", rec.Uses), string(rec.Origin), status)
	}

	summary(out, fmt.Sprintf("Total: %d prompts, %d excluded (threshold %.2f)", len(catalog), excluded, threshold))
}

func runPromptsAdd(cmd *cobra.Command, args []string) error {
	name, template := strings.TrimSpace(args[0]), args[1]
	if prompts.IsSentinel(name) {
		return fmt.Errorf("%q is a reserved prompt name", name)
	}
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("template cannot be empty")
	}
	if !strings.HasSuffix(template, "\n\n") {
		template = strings.TrimRight(template, "\n") + "\n\n"
	}

	store, err := orchestrator.NewPromptStore(appConfig, logger)
	if err != nil {
		return err
	}
	if err := store.AddTemplate(name, template, initialScore, prompts.OriginManual); err != nil {
		return err
	}

	rec, _ := store.Get(name)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added prompt %s (score %.2f)\n", name, rec.Score)
	return nil
}
