package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/payallenka/isl/internal/api/history"
	"github.com/payallenka/isl/internal/core/domain"
	"github.com/payallenka/isl/internal/core/ports"
)

func newHistoryCommand(app *App) *cobra.Command {
	var (
		latest   bool
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List prediction transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			idc, err := app.signIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			var credentials ports.CredentialProvider
			if idc != nil {
				credentials = idc
			}

			if latest {
				return app.printLatest(cmd, credentials)
			}
			return app.printHistory(cmd, credentials)
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "Show only the most recent transaction")
	cmd.Flags().StringVar(&email, "email", "", "Sign in to list only your own transactions")
	cmd.Flags().StringVar(&password, "password", "", "Password for --email")
	return cmd
}

func (a *App) printHistory(cmd *cobra.Command, credentials ports.CredentialProvider) error {
	token, err := currentToken(cmd, credentials)
	if err != nil {
		return err
	}

	records, err := a.historyClient().List(cmd.Context(), token)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, history.EmptyMessage)
		return nil
	}

	for i, rec := range records {
		if i > 0 {
			fmt.Fprintln(a.Out)
		}
		writeRecord(a.Out, rec)
	}
	return nil
}

func (a *App) printLatest(cmd *cobra.Command, credentials ports.CredentialProvider) error {
	token, err := currentToken(cmd, credentials)
	if err != nil {
		return err
	}

	rec, ok, err := a.historyClient().FetchLatest(cmd.Context(), token)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.Out, history.EmptyMessage)
		return nil
	}
	fmt.Fprintln(a.Out, "Last Transaction:")
	writeRecord(a.Out, rec)
	return nil
}

// writeRecord prints each field on its own line in server order.
func writeRecord(out io.Writer, rec domain.TransactionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, f := range rec.Fields {
		fmt.Fprintf(w, "  %s:\t%s\n", f.Key, f.Display())
	}
	w.Flush()
}

func currentToken(cmd *cobra.Command, credentials ports.CredentialProvider) (string, error) {
	if credentials == nil {
		return "", nil
	}
	return credentials.CurrentToken(cmd.Context())
}
