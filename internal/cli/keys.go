package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/stats"
)

// KeyInfo describes a stat key steps can be ranked by.
type KeyInfo struct {
	Name        string `json:"name"`
	Short       string `json:"short"`
	Description string `json:"description"`
}

// NewKeysCommand creates the keys command.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "keys",
		Short:         "List the stats steps can be ranked by",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			keys := stats.Keys()
			infos := make([]KeyInfo, len(keys))
			for i, k := range keys {
				infos[i] = KeyInfo{Name: k.Name(), Short: k.ShortName(), Description: k.Description()}
			}

			return formatter.Render(infos, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				for _, k := range infos {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", k.Name, k.Short, k.Description)
				}
				return tw.Flush()
			})
		},
	}
}
