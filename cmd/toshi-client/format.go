package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/toshi-app/toshi-client/internal/utils"
)

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <hex> <decimals>",
		Short: "Render a hex token amount as a fixed point decimal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decimals, err := strconv.Atoi(args[1])
			if err != nil || decimals < 0 {
				return fmt.Errorf("decimals must be a non-negative integer, got %q", args[1])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), utils.FormatFixedPoint(args[0], decimals))
			return err
		},
	}
}
