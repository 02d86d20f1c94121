package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/payallenka/isl/internal/gloss"
)

func newSignCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sign TEXT...",
		Short: "Translate spoken-language text into a sign sequence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			gestures := gloss.New(app.cfg.Gloss.Vocabulary...).Translate(text)
			if len(gestures) == 0 {
				return errors.New("nothing to sign")
			}

			if asJSON {
				enc := json.NewEncoder(app.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(gestures)
			}
			fmt.Fprintln(app.Out, gloss.String(gestures))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the sequence as JSON")
	return cmd
}
