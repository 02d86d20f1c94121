package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/payallenka/isl/internal/core/domain"
)

type authOptions struct {
	Email       string
	Password    string
	DisplayName string
	PrintToken  bool
}

func newAuthCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Create an account or sign in",
	}

	var signUp authOptions
	signUpCmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.identityClient().SignUp(cmd.Context(), signUp.Email, signUp.Password, signUp.DisplayName)
			if err != nil {
				return friendlyError(err)
			}
			app.printSession("Account created for", session, signUp.PrintToken)
			return nil
		},
	}
	addCredentialFlags(signUpCmd, &signUp)
	signUpCmd.Flags().StringVar(&signUp.DisplayName, "display-name", "", "Name shown on your profile")

	var signIn authOptions
	signInCmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and check the credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.identityClient().SignIn(cmd.Context(), signIn.Email, signIn.Password)
			if err != nil {
				return friendlyError(err)
			}
			app.printSession("Signed in as", session, signIn.PrintToken)
			return nil
		},
	}
	addCredentialFlags(signInCmd, &signIn)

	cmd.AddCommand(signUpCmd, signInCmd)
	return cmd
}

func addCredentialFlags(cmd *cobra.Command, opts *authOptions) {
	cmd.Flags().StringVar(&opts.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "Account password")
	cmd.Flags().BoolVar(&opts.PrintToken, "print-token", false, "Print the ID token")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
}

func (a *App) printSession(prefix string, session *domain.AuthSession, printToken bool) {
	fmt.Fprintf(a.Out, "%s %s\n", prefix, session.User.Email)
	if session.User.DisplayName != "" {
		fmt.Fprintf(a.Out, "Display name: %s\n", session.User.DisplayName)
	}
	if printToken {
		fmt.Fprintln(a.Out, session.IDToken)
	}
}

// friendlyError replaces auth errors with the message meant for users.
func friendlyError(err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return errors.New(domain.FriendlyAuthMessage(authErr.Code))
	}
	return err
}
