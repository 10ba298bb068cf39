package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/costboard/adapters/hasher"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var hashCost int

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash an admin token or API key for the config file",
	Long: `Read a secret and print its bcrypt hash, suitable for
auth.admin_token_hash or auth.keys[].key_hash.

On a terminal the secret is read without echo. Otherwise the first line
of stdin is used:

  echo -n "$ADMIN_TOKEN" | costboard hash`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		sum, err := hasher.NewBcrypt(hashCost).Hash(secret)
		if err != nil {
			return fmt.Errorf("hash: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(sum))
		return err
	},
}

func init() {
	hashCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (0 uses the default)")
	rootCmd.AddCommand(hashCmd)
}

// readSecret prompts without echo when in is a terminal and reads one
// line otherwise.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Secret: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return nonEmpty(string(b))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return nonEmpty(strings.TrimRight(line, "\r\n"))
}

func nonEmpty(s string) (string, error) {
	if s == "" {
		return "", errors.New("empty secret")
	}
	return s, nil
}
