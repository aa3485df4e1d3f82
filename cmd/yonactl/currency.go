package main

import (
	"fmt"

	"YONASettlement/internal/currency"

	"github.com/spf13/cobra"
)

func currencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "currency",
		Short: "Convert between currency symbols and ledger currency codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "encode [symbol]",
		Short: "Encode a symbol as a ledger currency code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := currency.Encode(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "decode [code]",
		Short: "Decode a ledger currency code for display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), currency.Decode(args[0]))
			return nil
		},
	})
	return cmd
}
