package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/depmaths/messagerie/internal/client"
)

var (
	loginName     string
	loginPassword string
)

// loginCmd signs in and stores the credential
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the credential",
	Long: `Sign in against the configured server and store the returned token in
~/.messagerie/credential.json. The password is read from standard input when
--password is not given.`,
	RunE: runLogin,
}

// logoutCmd forgets the stored credential
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credential",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVarP(&loginName, "name", "n", "", "Account name")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	_ = loginCmd.MarkFlagRequired("name")
}

func runLogin(cmd *cobra.Command, args []string) error {
	config, _, err := loadConfig()
	if err != nil {
		return err
	}

	password := loginPassword
	if password == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Mot de passe: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ctx, cancel := withTimeout(cmd.Context(), config)
	defer cancel()

	cred, err := client.Login(ctx, config.Server.Address, loginName, password)
	if err != nil {
		return err
	}

	store, err := credentialStore()
	if err != nil {
		return err
	}
	if err := store.Save(cred); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Connecté en tant que %s\n", cred.DisplayName())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentialStore()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Déconnecté")
	return nil
}

func credentialStore() (*client.CredentialStore, error) {
	dir, err := client.DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	return client.NewCredentialStore(dir)
}
