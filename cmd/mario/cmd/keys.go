package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/mario/internal/core/auth"
	"github.com/solatis/mario/internal/core/config"
	"github.com/solatis/mario/internal/types"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys for the plumbing service",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysListCmd)
	keysCreateCmd.Flags().String("label", "", "human-readable label for the key")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with when several are configured")
	keysCreateCmd.MarkFlagRequired("label")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, secret, err := auth.SelectSecret(secrets, secretID)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	id, key, err := auth.CreateKey(cmd.Context(), j.Queries(), secretID, secret, label)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key id: %s\n", id)
	fmt.Fprintf(out, "api key: %s\n", key)
	fmt.Fprintln(out, "store the key now; it cannot be shown again")
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	id, err := types.ParseKeyID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	if err := auth.RevokeKey(cmd.Context(), j.Queries(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	keys, err := auth.ListKeys(cmd.Context(), j.Queries())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no API keys")
		return nil
	}

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{
			string(k.ID),
			k.Label,
			k.SecretID,
			k.CreatedAt,
			k.LastUsedAt.String,
			k.RevokedAt.String,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "LABEL", "SECRET", "CREATED", "LAST USED", "REVOKED"},
		rows,
		func(row int) bool { return keys[row].Revoked() },
	))
	return nil
}
