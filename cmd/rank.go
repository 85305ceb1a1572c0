package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fmuoria/ranksense/internal/topsis"
)

var rankCmd = &cobra.Command{
	Use:   "rank [batch.json]",
	Short: "Rank an already scored JSON batch with TOPSIS",
	Long: `Reads {"candidates":[{"id":...,"criteria":[{"name","score","weight","polarity"}]}]}
from the given file or stdin and prints the ranking as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return rank(in, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)
}

func rank(in io.Reader, out io.Writer) error {
	var batch topsis.Batch
	dec := json.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&batch); err != nil {
		return fmt.Errorf("invalid batch JSON: %w", err)
	}

	results, err := topsis.Rank(batch)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"results": results})
}
