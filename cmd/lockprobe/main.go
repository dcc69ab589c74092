// lockprobe inspects and exercises the row-locking behavior of a live
// database: print the static capability table, or run a two-session
// conflict probe and report the classified outcome.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/dblock/dialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "lockprobe",
	Short: "Probe database row-locking capabilities and behavior",
}

var capsCmd = &cobra.Command{
	Use:   "caps [backend]",
	Short: "Print the locking capability table",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := dialect.Names()
		if len(args) == 1 {
			if _, err := dialect.For(args[0]); err != nil {
				return err
			}
			names = args[:1]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BACKEND\tNOWAIT\tWAIT n\tALIAS\tOUTER JOIN\tSKIP LOCKED")
		for _, name := range names {
			d, err := dialect.For(name)
			if err != nil {
				return err
			}
			c := d.Caps
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				name, yn(c.NoWait), yn(c.WaitTimeout), yn(c.AliasLocking),
				yn(c.OuterJoinLocking), yn(c.SkipLocked))
		}
		return w.Flush()
	},
}

func yn(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func main() {
	rootCmd.AddCommand(capsCmd)
	rootCmd.AddCommand(conflictCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
