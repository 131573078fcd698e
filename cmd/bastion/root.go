package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/credential"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bastion",
		Short:         "Bastion: role-based authorization and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newExpandCmd())
	return root
}

func newHashPasswordCmd() *cobra.Command {
	var useBcrypt bool
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a storable hash for a password read from the argument or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			var hasher bastion.PasswordHasher = credential.DefaultArgon2id()
			if useBcrypt {
				hasher = credential.DefaultBcrypt()
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "hash with bcrypt instead of argon2id")
	return cmd
}

func newExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <permission>...",
		Short: "Print every spelling a permission key is satisfied by",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range args {
				variants := bastion.ExpandVariants(p)
				if _, err := fmt.Fprintf(out, "%s\t%s\n", p, strings.Join(variants, " ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
