package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/epoch8/cfgrepo/internal/ui"
)

const conceptsDoc = `# cpctl concepts

A config store holds **blobs** keyed by name, grouped into immutable
**snapshots** and versioned on named **branches**.

- ` + "`get`" + `/` + "`set`" + ` read and write the current **stage**, an
  uncommitted overlay on top of the branch's latest snapshot.
- ` + "`commit`" + ` freezes the stage into a new snapshot and advances the
  branch to point at it. A clean stage makes commit a no-op.
- ` + "`branch create`" + ` forks a new branch from an existing one without
  switching the caller onto it; ` + "`branch switch`" + ` refuses to run
  while the stage is dirty.
- ` + "`merge`" + ` folds a source branch into the current one. Every key the
  source defines replaces the current branch's value (the **source
  wins**); keys only the current branch has are kept (union); a deletion
  on the source side propagates to the merge result. On the git backend
  only keys the source changed since the branches diverged are taken
  from it; other keys keep the current branch's value.
`

var docsCmd = &cobra.Command{
	Use:    "docs",
	Short:  "Print a short primer on the branch/snapshot/merge model",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			fmt.Println(conceptsDoc)
			return nil
		}
		width := ui.GetWidth()
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			fmt.Println(conceptsDoc)
			return nil
		}
		out, err := renderer.Render(conceptsDoc)
		if err != nil {
			fmt.Println(conceptsDoc)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
