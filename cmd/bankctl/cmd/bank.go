package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

var (
	fromBank    int64
	toBank      int64
	fromAccount string
	toAccount   string
	amount      int64
	pin         string
	when        string
	bankID      int64
	accountType string
	balance     int64
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List your accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		accounts, err := client.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNUMBER\tBANK\tBALANCE")
		for _, a := range accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", a.ID, a.AccountNumber, a.BankName, a.Balance)
		}
		return w.Flush()
	},
}

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List banks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		banks, err := client.ListBanks(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tNAME")
		for _, b := range banks {
			fmt.Fprintf(w, "%d\t%s\t%s\n", b.ID, b.Code, b.BankName)
		}
		return w.Flush()
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer funds now",
	Long: `Transfer funds now. If the outcome is unknown (timeout, dropped connection,
5xx), run the same command again: it reuses the idempotency key so the bank
applies the transfer at most once.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := client.Transfer(cmd.Context(), goSession.TransferRequest{
			FromBankID:        fromBank,
			ToBankID:          toBank,
			FromAccountNumber: fromAccount,
			ToAccountNumber:   toAccount,
			Amount:            amount,
			Password:          pin,
		})
		if err != nil {
			return explain(cmd, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		printKey(cmd, res.Submission)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a transfer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		at, err := goSession.ParseLocalTime(when)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		receipt, err := client.CreateScheduledTransfer(cmd.Context(), goSession.ScheduledTransferRequest{
			FromAccountNumber: fromAccount,
			ToAccountNumber:   toAccount,
			ToBankID:          toBank,
			Amount:            amount,
			ScheduledAt:       at,
			Password:          pin,
		})
		if err != nil {
			return explain(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "#%d %s at %s: %s\n",
			receipt.ScheduledTransferID, receipt.Status, receipt.ScheduledAt.Format(goSession.LocalTimeLayout), receipt.Message)
		printKey(cmd, receipt.Submission)
		return nil
	},
}

var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List your scheduled transfers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		list, err := client.ListScheduledTransfers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFROM\tTO\tAMOUNT\tAT\tSTATUS")
		for _, st := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				st.ID, st.FromAccountNumber, st.ToAccountNumber, st.Amount, st.ScheduledAt.Format(goSession.LocalTimeLayout), st.Status)
		}
		return w.Flush()
	},
}

var openAccountCmd = &cobra.Command{
	Use:   "open-account",
	Short: "Open a new account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		created, err := client.CreateAccount(cmd.Context(), goSession.AccountRequest{
			BankID:      bankID,
			AccountType: accountType,
			Balance:     balance,
			Password:    pin,
		})
		if err != nil {
			return explain(cmd, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "opened %s at %s\n", created.AccountNumber, created.BankName)
		printKey(cmd, created.Submission)
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List submissions whose outcome is still unknown",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ops, err := client.PendingOperations(cmd.Context())
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing pending")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tKEY\tOPERATION")
		for _, op := range ops {
			fmt.Fprintf(w, "%s\t%s\t%s\n", op.Scope, op.IdempotencyKey, op.Fingerprint)
		}
		return w.Flush()
	},
}

func printKey(cmd *cobra.Command, sub goSession.Submission) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "idempotency key %s (reused=%t)\n", sub.IdempotencyKey, sub.Reused)
	}
}

func explain(cmd *cobra.Command, err error) error {
	if goSession.Ambiguous(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "outcome unknown; repeat the same command to retry safely")
	}
	return err
}

func init() {
	for _, c := range []*cobra.Command{transferCmd, scheduleCmd} {
		f := c.Flags()
		f.StringVar(&fromAccount, "from", "", "source account number")
		f.StringVar(&toAccount, "to", "", "target account number")
		f.Int64Var(&toBank, "to-bank", 0, "target bank id")
		f.Int64Var(&amount, "amount", 0, "amount in minor units")
		f.StringVar(&pin, "pin", "", "source account password")
		_ = c.MarkFlagRequired("from")
		_ = c.MarkFlagRequired("to")
		_ = c.MarkFlagRequired("amount")
	}
	transferCmd.Flags().Int64Var(&fromBank, "from-bank", 0, "source bank id")
	scheduleCmd.Flags().StringVar(&when, "at", "", "execution time, e.g. 2030-01-31T09:00")
	_ = scheduleCmd.MarkFlagRequired("at")

	openAccountCmd.Flags().Int64Var(&bankID, "bank", 0, "bank id")
	openAccountCmd.Flags().StringVar(&accountType, "type", "CHECKING", "account type")
	openAccountCmd.Flags().Int64Var(&balance, "balance", 0, "opening balance")
	openAccountCmd.Flags().StringVar(&pin, "pin", "", "4-digit account password")
	_ = openAccountCmd.MarkFlagRequired("bank")

	rootCmd.AddCommand(accountsCmd, banksCmd, transferCmd, scheduleCmd, scheduledCmd, openAccountCmd, pendingCmd)
}
