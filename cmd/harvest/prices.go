package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/config"
)

var pricesFile string

func init() {
	pricesCmd.Flags().StringVar(&pricesFile, "prices", "", "price table file (default $HARVEST_PRICES_FILE or the built-in table)")
	rootCmd.AddCommand(pricesCmd)
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "List the models in the price table and their rates.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := pricesFile
		if path == "" {
			path = config.Load().Pricing.TablePath
		}
		table, err := loadPrices(path)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPROMPT $/1M\tCOMPLETION $/1M")
		for _, name := range table.Models() {
			r := table[name]
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", name, r.PromptRate*1e6, r.CompletionRate*1e6)
		}
		return tw.Flush()
	},
}
