package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/riq-labs/faculty-pipeline/internal/config"
)

var institutionsCmd = &cobra.Command{
	Use:   "institutions",
	Short: "List known institution profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		insts, err := loadInstitutions()
		if err != nil {
			return eris.Wrap(err, "load institutions")
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tOPENALEX ID\tEMAIL DOMAINS\tDIRECTORIES")
		for _, key := range config.InstitutionKeys(insts) {
			inst := insts[key]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				key, inst.Name, inst.OpenAlexID,
				strings.Join(inst.EmailDomains, ","), len(inst.Directories))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(institutionsCmd)
}
