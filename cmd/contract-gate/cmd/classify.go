package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/codec"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file|->",
	Short: "Print the usage pattern of every rule in a file",
	Long: `Read a JSON rule list, offer or agreement and print the usage pattern
each rule is enforced as. Use - to read from stdin.

Examples:
  contract-gate classify offer.json
  cat agreement.json | contract-gate classify -`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read rules: %w", err)
	}

	rules, err := codec.JSON{}.DeserializeRules(data)
	if err != nil {
		return err
	}
	return printPatterns(cmd.OutOrStdout(), rules)
}

func printPatterns(out io.Writer, rules []usage.Rule) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tKIND\tPATTERN")
	for i, r := range rules {
		id := r.ID
		if id == "" {
			id = "-"
		}
		pattern, err := usage.Classify(r)
		if err != nil {
			fmt.Fprintf(w, "%d\t%s\t%s\tunsupported (%v)\n", i, id, r.Kind, err)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, id, r.Kind, pattern)
	}
	return w.Flush()
}
