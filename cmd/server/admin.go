package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.pilab.hu/authd/client"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage OAuth2 clients",
}

var clientRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a client and print its credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		redirects, _ := cmd.Flags().GetStringSlice("redirect-uri")
		hosts, _ := cmd.Flags().GetStringSlice("host-uri")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		c, err := a.clients.Register(cmd.Context(), client.Info{
			Name:         args[0],
			Description:  description,
			RedirectURIs: redirects,
			HostURIs:     hosts,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage resource owners",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user; the password is read from --password or AUTHD_PASSWORD",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("AUTHD_PASSWORD")
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		u, err := a.users.CreateUser(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

func init() {
	clientRegisterCmd.Flags().StringSlice("redirect-uri", nil, "redirect path+query, repeatable")
	clientRegisterCmd.Flags().StringSlice("host-uri", nil, "allowed origin, repeatable")
	clientRegisterCmd.Flags().String("description", "", "client description")
	clientCmd.AddCommand(clientRegisterCmd)

	userCreateCmd.Flags().String("password", "", "user password")
	userCmd.AddCommand(userCreateCmd)
}
