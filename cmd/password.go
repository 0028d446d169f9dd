package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"formdesk/bootstrap"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const maxBcryptPasswordBytes = 72 // bcrypt ignores everything past this

type hashResult struct {
	Hash     string `json:"hash"`
	Password string `json:"password,omitempty"`
	Cost     int    `json:"cost"`
}

// newHashPasswordCmd creates the 'hash-password' command
func newHashPasswordCmd() *cobra.Command {
	var (
		password string
		generate bool
		length   int
		cost     int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Produce a bcrypt hash for auth.admin_password_hash",
		Long: `Hash an admin password with bcrypt. The password is taken from --password,
generated with --generate, or read as the first line of stdin.

Example:
  echo 'long passphrase here' | formdesk hash-password
  formdesk hash-password --generate --length 24`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
			}

			generated := false
			switch {
			case generate:
				if password != "" {
					return errors.New("--generate and --password are mutually exclusive")
				}
				p, err := bootstrap.GenerateSecurePassword(length)
				if err != nil {
					return err
				}
				password = p
				generated = true
			case password == "":
				p, err := readPasswordLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			if password == "" {
				return errors.New("password cannot be empty")
			}
			if len(password) > maxBcryptPasswordBytes {
				return fmt.Errorf("password exceeds %d bytes", maxBcryptPasswordBytes)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}

			result := hashResult{Hash: string(hash), Cost: cost}
			if generated {
				result.Password = password
			}
			return renderHashResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password to hash (visible in shell history; prefer stdin)")
	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random password and hash it")
	cmd.Flags().IntVar(&length, "length", 24, "Length of the generated password (minimum 16)")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")

	return cmd
}

// readPasswordLine returns the first line of r without its line ending.
func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func renderHashResult(w io.Writer, result hashResult) error {
	if outputJSON {
		return outputAsJSON(w, result)
	}
	if quiet {
		fmt.Fprintln(w, result.Hash)
		return nil
	}

	if result.Password != "" {
		fmt.Fprintf(w, "%s %s\n", warningColor.Sprint("Generated password (store it now, it is not shown again):"), result.Password)
	}
	fmt.Fprintf(w, "%s %s\n", infoColor.Sprint("bcrypt hash:"), result.Hash)
	fmt.Fprintf(w, "Set it as FORMDESK_AUTH_ADMIN_PASSWORD_HASH or auth.admin_password_hash.\n")
	return nil
}
