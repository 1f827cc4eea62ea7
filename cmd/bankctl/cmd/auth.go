package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/sessionclock"
)

var (
	email    string
	password string
	name     string
	phone    string
	role     string
	watch    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := client.Login(cmd.Context(), email, password); err != nil {
			return err
		}
		return printSession(cmd)
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register a new user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		err := client.Signup(cmd.Context(), goSession.SignupRequest{
			Name:     name,
			Email:    email,
			Password: password,
			Phone:    phone,
			Role:     role,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", email)
		return nil
	},
}

var checkEmailCmd = &cobra.Command{
	Use:   "check-email EMAIL",
	Short: "Report whether an email address can still be registered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := client.CheckEmail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintln(cmd.OutOrStdout(), "available")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "taken")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return client.Logout(cmd.Context())
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !watch {
			return printSession(cmd)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out := cmd.OutOrStdout()
		clock, err := client.WatchSession(ctx, func(remaining time.Duration) {
			fmt.Fprintf(out, "\rsession expires in %s ", sessionclock.Format(remaining))
		})
		if err != nil {
			return err
		}
		<-clock.Done()
		select {
		case <-clock.Expired():
			fmt.Fprintln(out, "\nsession expired")
		default:
			fmt.Fprintln(out)
		}
		return nil
	},
}

var extendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Refresh the access token now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		exp, err := client.ExtendSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session extended until %s\n", exp.Local().Format(time.DateTime))
		return nil
	},
}

func printSession(cmd *cobra.Command) error {
	info, err := client.Session().Info(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "user:    %s\n", info.UserID)
	fmt.Fprintf(out, "role:    %s\n", info.Role)
	if !info.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "expires: %s (%s left)\n", info.ExpiresAt.Local().Format(time.DateTime), sessionclock.Format(info.Remaining))
	}
	fmt.Fprintf(out, "refresh: %t\n", info.HasRefreshToken)
	return nil
}

func init() {
	loginCmd.Flags().StringVar(&email, "email", "", "account email")
	loginCmd.Flags().StringVar(&password, "password", os.Getenv("BANK_PASSWORD"), "account password (default $BANK_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("email")

	signupCmd.Flags().StringVar(&email, "email", "", "account email")
	signupCmd.Flags().StringVar(&password, "password", os.Getenv("BANK_PASSWORD"), "account password (default $BANK_PASSWORD)")
	signupCmd.Flags().StringVar(&name, "name", "", "display name")
	signupCmd.Flags().StringVar(&phone, "phone", "", "phone number; non-digits are dropped")
	signupCmd.Flags().StringVar(&role, "role", goSession.RoleUser, "USER or ADMIN")
	_ = signupCmd.MarkFlagRequired("email")

	sessionCmd.Flags().BoolVarP(&watch, "watch", "w", false, "count down to expiry and log out when it is reached")

	rootCmd.AddCommand(loginCmd, signupCmd, checkEmailCmd, logoutCmd, sessionCmd, extendCmd)
}
