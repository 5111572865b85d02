package main

import (
	"errors"
	"fmt"
	"sort"

	"clenja-agent-go/internal/common"

	"github.com/spf13/cobra"
)

var (
	receiptsLimit int
	auditLimit    int
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List executed sends, swaps and cashouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		receipts, err := services.API.GetReceipts(cmd.Context(), userId, receiptsLimit)
		if err != nil {
			return err
		}

		common.PrintHeader(fmt.Sprintf("Receipts for %s (%d)", userId, len(receipts)), common.DefaultWidth)
		for i, r := range receipts {
			fmt.Printf("%s %-8s %12s %-5s %s\n", common.BoxPrefix(i == len(receipts)-1),
				r.Kind, r.Amount.String(), r.Token, r.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("%s   ref: %s\n", common.BoxDetailPrefix(i == len(receipts)-1), common.ShortRef(r.Ref))
		}
		common.PrintFooter("End of receipts", common.DefaultWidth)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audit events for the user",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := services.API.GetAuditEvents(cmd.Context(), userId, auditLimit)
		if err != nil {
			return err
		}

		common.PrintHeader(fmt.Sprintf("Audit events for %s (%d)", userId, len(events)), common.WideWidth)
		for i, e := range events {
			fmt.Printf("%s %s %-28s %s\n", common.BoxPrefix(i == len(events)-1),
				e.Ts.Format("2006-01-02 15:04:05"), e.Action, e.Status)
			if len(e.Detail) > 0 {
				fmt.Printf("%s   %s\n", common.BoxDetailPrefix(i == len(events)-1), common.FormatDetail(e.Detail))
			}
		}
		common.PrintFooter("End of audit events", common.WideWidth)
		return nil
	},
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the wallet linked to the user",
}

var walletLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Create or link the user's wallet on the selected backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := services.Providers.LinkWallet(cmd.Context(), userId)
		if err != nil {
			return err
		}
		if err := services.DbService.UpsertWallet(cmd.Context(), record); err != nil {
			return fmt.Errorf("failed to save wallet: %w", err)
		}

		fmt.Printf("Linked %s wallet for %s: %s\n", record.Backend, userId, record.Address)
		return nil
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the Formance ledger mirror",
}

var ledgerOutflowsCmd = &cobra.Command{
	Use:   "outflows",
	Short: "Show the user's total outflows per token recorded in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if services.Ledger == nil {
			return errors.New("ledger mirror is not configured (set FORMANCE_STACK_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET)")
		}

		totals, err := services.Ledger.Outflows(cmd.Context(), userId)
		if err != nil {
			return err
		}

		symbols := make([]string, 0, len(totals))
		for symbol := range totals {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		common.PrintHeader(fmt.Sprintf("Ledger outflows for %s", userId), common.DefaultWidth)
		for i, symbol := range symbols {
			fmt.Printf("%s %-6s %s\n", common.BoxPrefix(i == len(symbols)-1), symbol, totals[symbol].String())
		}
		common.PrintFooter("End of outflows", common.DefaultWidth)
		return nil
	},
}

func init() {
	receiptsCmd.Flags().IntVarP(&receiptsLimit, "limit", "n", 20, "Maximum number of records")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "Maximum number of records")
}
