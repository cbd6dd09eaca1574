package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/output"
)

func newTokenCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "token [TOKEN]",
		Short: "Show how to obtain an access token, or store one",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				fmt.Println(config.TokenGuide)
				token, source := config.ResolveToken("")
				if token != "" {
					output.PrintInfo(fmt.Sprintf("a token is currently available from %s", source))
				}
				return
			}
			token := strings.TrimSpace(args[0])
			if token == "" {
				output.PrintError("empty token")
				os.Exit(1)
			}
			if save {
				if err := config.SaveToken(token); err != nil {
					output.PrintError(fmt.Sprintf("saving token: %v", err))
					os.Exit(1)
				}
				output.PrintSuccess("token saved to config file")
				return
			}
			output.PrintInfo("token accepted; pass --save to persist it, or export ACCESS_TOKEN")
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Persist the token to the config file")
	return cmd
}

// promptToken asks for a token interactively. Input is hidden when stdin is
// a terminal.
func promptToken() (string, bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", false, fmt.Errorf("access token required; run 'sed-dl token' for instructions")
	}
	fmt.Fprint(os.Stderr, "Enter access token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false, err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false, nil
	}
	fmt.Fprint(os.Stderr, "Save token to config file? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	save := strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
	return token, save, nil
}
