// Package main provides the entry point for the speaky CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/speaky-cli/speaky/internal/config"
	"github.com/speaky-cli/speaky/internal/ttypes"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	opts options

	rootCmd = &cobra.Command{
		Use:   "speaky [TEXT...]",
		Short: "Say it out loud, with a cache",
		Long: paragraph(
			fmt.Sprintf("\nTurn text into speech with OpenAI and %s, so the same words are never paid for twice.", keyword("cache every utterance")),
		),
		Example: paragraph(`speaky Hello world
speaky cache is full
speaky --voice onyx "Build finished"
speaky -- --voice is a flag
git log -1 --format=%s | speaky
speaky --cache-info
speaky --clear-cache`),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: execute,
	}
)

// execute runs the action flag that was given, or speaks. Every positional
// argument is text to speak, so speaky has no subcommands.
func execute(cmd *cobra.Command, args []string) error {
	a := newApp()

	action := opts.action()
	if action != "" && len(args) > 0 {
		return ttypes.ConfigError(ttypes.CodeInvalidConfig, fmt.Sprintf("--%s does not take text to speak", action), nil)
	}

	switch action {
	case flagClearCache:
		return a.clearCache(opts)
	case flagCacheInfo:
		return a.cacheStats(opts)
	case flagCachePath:
		return a.cachePath(opts)
	case flagEditConfig:
		return a.editConfig(opts)
	case flagCompletion:
		return writeCompletion(a.stdout, cmd.Root(), opts.completion)
	case flagMan:
		return writeManPage(a.stdout, cmd.Root())
	}
	return a.speak(cmd.Context(), opts, args)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		reportError(os.Stderr, err)
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	// Completion scripts come from --completion; a "completion" word is text.
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaultConfig, _ := config.DefaultConfigFile()
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfig))
	rootCmd.PersistentFlags().BoolVar(&opts.overrides.Debug, "debug", false, "log debug output to stderr")

	rootCmd.Flags().BoolVar(&opts.clearCache, flagClearCache, false, "delete all cached audio and exit")
	rootCmd.Flags().BoolVar(&opts.cacheInfo, flagCacheInfo, false, "show the cache directory, entry count and size, and exit")
	rootCmd.Flags().BoolVar(&opts.cachePath, flagCachePath, false, "print the cache directory and exit")
	rootCmd.Flags().BoolVar(&opts.editConfig, flagEditConfig, false, "edit the config file with $EDITOR, creating it if needed")
	rootCmd.Flags().StringVar(&opts.completion, flagCompletion, "", "print the completion script for `shell` (bash, zsh, fish or powershell)")
	rootCmd.Flags().BoolVar(&opts.man, flagMan, false, "print the man page")
	_ = rootCmd.Flags().MarkHidden(flagMan)
	rootCmd.MarkFlagsMutuallyExclusive(flagClearCache, flagCacheInfo, flagCachePath, flagEditConfig, flagCompletion, flagMan)

	rootCmd.Flags().BoolVarP(&opts.clipboard, "clipboard", "c", false, "speak the contents of the clipboard")
	rootCmd.Flags().BoolVarP(&opts.noPlay, "no-play", "n", false, "synthesize and cache, then print the cached file instead of playing it")
	rootCmd.Flags().StringVarP(&opts.overrides.Voice, "voice", "v", "", fmt.Sprintf("voice persona (default %q)", config.DefaultVoice))
	rootCmd.Flags().StringVarP(&opts.overrides.Model, "model", "m", "", fmt.Sprintf("speech model (default %q)", config.DefaultModel))
	rootCmd.Flags().StringVarP(&opts.overrides.Instructions, "instructions", "i", "", "delivery instructions")
	rootCmd.Flags().StringVarP(&opts.overrides.Player, "player", "p", "", "playback backend: auto, oto or command")

	_ = rootCmd.RegisterFlagCompletionFunc(flagCompletion, cobra.FixedCompletions(completionShells, cobra.ShellCompDirectiveNoFileComp))
	_ = rootCmd.RegisterFlagCompletionFunc("player", cobra.FixedCompletions(
		[]string{config.PlayerAuto, config.PlayerOto, config.PlayerCommand}, cobra.ShellCompDirectiveNoFileComp))
}
