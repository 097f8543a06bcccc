package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/store"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "manage the configured Discord accounts",
	}
	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountEnableCmd(true))
	cmd.AddCommand(newAccountEnableCmd(false))
	return cmd
}

func newAccountAddCmd() *cobra.Command {
	var channelID, guildID, userAgent string
	var coreSize, queueSize, weight int

	cmd := &cobra.Command{
		Use:   "add <account-id>",
		Short: "register a new account; prompts for its user token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			token, err := readSecret(cmd, "Discord user token: ")
			if err != nil {
				return err
			}

			acc := &model.Account{
				ID:        args[0],
				ChannelID: channelID,
				GuildID:   guildID,
				UserToken: token,
				UserAgent: userAgent,
				Enable:    true,
				CoreSize:  coreSize,
				QueueSize: queueSize,
				Weight:    weight,
			}
			acc.MaxQueueSize = queueSize
			acc.Clamp()

			if err := st.Accounts().Create(context.Background(), acc); err != nil {
				return fmt.Errorf("account add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s added\n", acc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&channelID, "channel-id", "", "imagine channel id")
	cmd.Flags().StringVar(&guildID, "guild-id", "", "guild id")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "browser user agent to present over the gateway")
	cmd.Flags().IntVar(&coreSize, "core-size", 3, "concurrent in-flight task budget")
	cmd.Flags().IntVar(&queueSize, "queue-size", 10, "pending queue capacity")
	cmd.Flags().IntVar(&weight, "weight", 1, "weight for the weight selector policy")
	return cmd
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			accs, err := st.Accounts().Find(context.Background(), store.Predicate{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, acc := range accs {
				fmt.Fprintf(out, "%-20s enabled=%-5v core=%d queue=%d weight=%d created=%s\n",
					acc.ID, acc.Enable, acc.CoreSize, acc.QueueSize, acc.Weight, humanize.Time(acc.CreatedAt))
			}
			return nil
		},
	}
}

func newAccountEnableCmd(enable bool) *cobra.Command {
	use := "disable <account-id>"
	short := "disable an account"
	if enable {
		use = "enable <account-id>"
		short = "re-enable a disabled account"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSetting(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			fields := map[string]interface{}{"enable": enable}
			if enable {
				fields["disabled_reason"] = ""
			}
			if err := st.Accounts().UpdateFields(context.Background(), args[0], fields); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s enable=%v\n", args[0], enable)
			return nil
		},
	}
}

// readSecret prompts on stderr and reads a secret without echoing it to
// the terminal, falling back to a plain line read when stdin isn't a
// TTY (e.g. piped input in scripts/CI).
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
