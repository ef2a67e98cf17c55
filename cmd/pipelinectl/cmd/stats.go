package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show raw event, record and stream statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		m, err := rt.Postgres.GetPipelineMetrics(ctx)
		if err != nil {
			return err
		}
		streamLen, err := rt.Stream.Len(ctx)
		if err != nil {
			return err
		}
		pending, err := rt.Stream.Pending(ctx)
		if err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*store.PipelineMetrics
				StreamLength    int64 `json:"stream_length"`
				PendingMessages int64 `json:"pending_messages"`
			}{m, streamLen, pending})
		}

		printStats(cmd.OutOrStdout(), m, streamLen, pending)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
}

func printStats(out io.Writer, m *store.PipelineMetrics, streamLen, pending int64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "RAW EVENTS\t%d\n", m.TotalRawEvents)
	for _, k := range sortedKeys(m.RawEventsByStatus) {
		fmt.Fprintf(w, "  %s\t%d\n", k, m.RawEventsByStatus[k])
	}
	fmt.Fprintf(w, "SUCCESS RATE\t%.2f%%\n", m.ProcessedSuccessRate)
	fmt.Fprintln(w, "TRANSACTIONS\t")
	for _, k := range sortedKeys(m.TransactionsByStatus) {
		fmt.Fprintf(w, "  %s\t%d\n", k, m.TransactionsByStatus[k])
	}
	fmt.Fprintf(w, "ABANDONED CARTS\t%d\n", m.AbandonedCarts)
	fmt.Fprintf(w, "UNRESOLVED DEAD LETTERS\t%d\n", m.UnresolvedDeadLetters)
	fmt.Fprintf(w, "STREAM LENGTH\t%d\n", streamLen)
	fmt.Fprintf(w, "PENDING MESSAGES\t%d\n", pending)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
