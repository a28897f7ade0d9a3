package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/secrets"
)

// NewSecretsCommand returns the secrets subcommand.
func NewSecretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "Store API keys in the .env file, age-encrypted",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a variable; the value is prompted for when omitted",
				ArgsUsage: "<KEY> [value]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "Store the value unencrypted",
					},
				},
				Action: runSecretsSet,
			},
			{
				Name:   "list",
				Usage:  "List the variables of the .env file",
				Action: runSecretsList,
			},
		},
		DefaultCommand: "list",
	}
}

func runSecretsSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().Get(0)
	if key == "" {
		return fmt.Errorf("usage: taskpilot secrets set <KEY> [value]")
	}
	value := cmd.Args().Get(1)
	if cmd.Args().Len() < 2 {
		v, err := readSecret(key)
		if err != nil {
			return err
		}
		value = v
	}

	if !cmd.Bool("plain") {
		id, err := secrets.EnsureIdentity(secrets.KeyPath())
		if err != nil {
			return err
		}
		if value, err = secrets.Seal(value, id.Recipient()); err != nil {
			return err
		}
	}

	path := config.DotenvPath()
	if err := os.MkdirAll(config.DataPath(), 0o755); err != nil {
		return err
	}
	if err := secrets.SetEntry(path, key, value); err != nil {
		return err
	}
	fmt.Printf("%s written to %s\n", key, path)
	return nil
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func readSecret(key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", key)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runSecretsList(_ context.Context, _ *cli.Command) error {
	list, err := secrets.Entries(config.DotenvPath())
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No variables set.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTORED")
	for _, e := range list {
		stored := "plain"
		if e.Sealed {
			stored = "encrypted"
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Key, stored)
	}
	return w.Flush()
}
