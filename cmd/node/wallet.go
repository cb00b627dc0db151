package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/minichain/internal/crypto"
)

func (a *app) newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "newaddress",
		Short: "Generate a key pair and store it in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPair, err := crypto.NewKeyPair()
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveKeyPair(keyPair); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keyPair.Address())
			return nil
		},
	}
}

func (a *app) listAddressesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listaddresses",
		Short: "List the addresses whose keys are stored in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			addresses, err := store.Addresses()
			if err != nil {
				return err
			}
			for _, address := range addresses {
				fmt.Fprintln(cmd.OutOrStdout(), address)
			}
			return nil
		},
	}
}
