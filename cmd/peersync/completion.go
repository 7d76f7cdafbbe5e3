package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peersync/peersync/internal/utils"
)

var completionCmd = &cobra.Command{
	Use:       "completion [bash|zsh|fish]",
	Short:     "Generate a shell completion script",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"bash", "zsh", "fish"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		shell := ""
		if len(args) == 1 {
			shell = args[0]
		} else {
			shell = filepath.Base(os.Getenv("SHELL"))
		}

		install, _ := cmd.Flags().GetBool("install")
		if !install {
			return writeCompletion(cmd, shell, os.Stdout)
		}

		path, err := completionInstallPath(shell)
		if err != nil {
			return err
		}
		if err := utils.EnsureParent(path); err != nil {
			return err
		}
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := writeCompletion(cmd, shell, file); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", green("installed"), path)
		fmt.Println("restart your shell to pick it up")
		return nil
	},
}

func init() {
	completionCmd.Flags().Bool("install", false, "write the script to the shell's completion directory")
}

func writeCompletion(cmd *cobra.Command, shell string, out *os.File) error {
	switch shell {
	case "bash":
		return cmd.Root().GenBashCompletionV2(out, true)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	default:
		return fmt.Errorf("unsupported shell %q (want bash, zsh or fish)", shell)
	}
}

func completionInstallPath(shell string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch shell {
	case "bash":
		return filepath.Join(home, ".local", "share", "bash-completion", "completions", "peersync"), nil
	case "zsh":
		return filepath.Join(home, ".zsh", "completions", "_peersync"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "peersync.fish"), nil
	default:
		return "", fmt.Errorf("unsupported shell %q", strings.TrimSpace(shell))
	}
}
