package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"qr-scan-station/internal/config"
	"qr-scan-station/internal/decrypt"
	"qr-scan-station/internal/router"
)

var decodeEncryptFlag bool

var decodeCmd = &cobra.Command{
	Use:   "decode <payload>",
	Short: "Decrypt and route a scanned payload without a camera",
	Long: `Runs a payload through the same decrypt and routing steps a live scan
uses and prints the outcome as JSON. Useful for verifying payloads produced
by the external encoder. With --encrypt the argument is treated as plaintext
and encrypted with the station key instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if decodeEncryptFlag {
			encrypted, err := decrypt.Encrypt(args[0])
			if err != nil {
				return fmt.Errorf("failed to encrypt payload: %w", err)
			}
			fmt.Println(encrypted)
			return nil
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		plain := decrypt.Decrypt(args[0])
		routed := router.New(cfg.ImageURLTemplate).Route(plain)

		out := map[string]interface{}{
			"rawText":       args[0],
			"decryptedText": plain,
			"changed":       plain != args[0],
			"id":            routed.ID,
			"imageUrl":      routed.ImageURL,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeEncryptFlag, "encrypt", false, "encrypt the argument instead of decrypting it")
	rootCmd.AddCommand(decodeCmd)
}
