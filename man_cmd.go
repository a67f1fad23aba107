package main

import (
	"fmt"
	"io"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

var completionShells = []string{"bash", "zsh", "fish", "powershell"}

// writeManPage renders the man page for root as roff.
func writeManPage(w io.Writer, root *cobra.Command) error {
	manPage, err := mcobra.NewManPage(1, root)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w, manPage.Build(roff.NewDocument()))
	return err
}

// writeCompletion prints the completion script for shell.
func writeCompletion(w io.Writer, root *cobra.Command, shell string) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(w)
	}
	return ttypes.ConfigError(ttypes.CodeInvalidConfig,
		fmt.Sprintf("unsupported shell %q: use bash, zsh, fish or powershell", shell), nil)
}
