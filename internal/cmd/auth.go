package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/inferstream/internal/secrets"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the API key in the system keychain",
}

var authSetCmd = &cobra.Command{
	Use:   "set [api-key]",
	Short: "Store the API key",
	Long: `Store the API key in the system keychain. Without an argument the key is
read from the first line of stdin, which keeps it out of shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runAuthDelete,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd, authDeleteCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	if !secrets.Default().IsSupported() {
		return fmt.Errorf("%w: set %s or api_key in the config file instead", secrets.ErrNotSupported, "DASHSCOPE_API_KEY")
	}

	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)

	if err := secrets.SetAPIKey(key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	err := secrets.DeleteAPIKey()
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		fmt.Fprintln(cmd.OutOrStdout(), "no API key stored")
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key deleted")
	return nil
}
