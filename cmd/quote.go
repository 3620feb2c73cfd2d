package cmd

import (
	"pledge/core"
	"pledge/internal/installment"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "quote interest and late fees of a loan offline",
	Run: func(cmd *cobra.Command, args []string) {
		principalStr, _ := cmd.Flags().GetString("principal")
		principal, err := decimal.NewFromString(principalStr)
		if err != nil {
			cmd.PrintErrln("parse principal:", err)
			return
		}

		bps, _ := cmd.Flags().GetUint64("rate")
		duration, _ := cmd.Flags().GetUint64("duration")
		n, _ := cmd.Flags().GetUint64("installments")
		paid, _ := cmd.Flags().GetUint64("paid")
		elapsed, _ := cmd.Flags().GetInt64("elapsed")

		terms := core.LoanTerms{
			Principal:       principal,
			InterestRate:    core.InterestRateDenominator.Mul(decimal.NewFromInt(int64(bps))),
			DurationSecs:    duration,
			NumInstallments: n,
		}

		if err := terms.Validate(); err != nil {
			cmd.PrintErrln("invalid terms:", err)
			return
		}

		if !terms.IsInstallment() {
			cmd.Println("interest:", installment.Interest(principal, terms.InterestRate))
			cmd.Println("repay:", installment.FullInterestAmount(principal, terms.InterestRate))
			return
		}

		schedule := installment.Schedule{
			Balance:         principal,
			DurationSecs:    duration,
			NumInstallments: n,
			NumPaid:         paid,
			InterestRate:    terms.InterestRate,
		}

		period := installment.CurrentPeriod(0, duration, n, elapsed)
		due := schedule.AmountsDue(elapsed)
		cmd.Println("period:", period)
		cmd.Println("interest:", due.Interest)
		cmd.Println("late fees:", due.LateFees)
		cmd.Println("missed:", due.Missed)
		cmd.Println("payoff:", principal.Add(due.Total()))
		cmd.Println("defaulted:", installment.Defaulted(n, paid, period))
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().String("principal", "1000", "principal")
	quoteCmd.Flags().Uint64("rate", 500, "full term interest rate in bps")
	quoteCmd.Flags().Uint64("duration", 86400, "duration in seconds")
	quoteCmd.Flags().Uint64("installments", 0, "number of installments, 0 for a single payment")
	quoteCmd.Flags().Uint64("paid", 0, "installments paid")
	quoteCmd.Flags().Int64("elapsed", 0, "seconds since the loan started")
}
