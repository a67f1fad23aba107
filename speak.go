package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize/english"
	"golang.org/x/term"

	"github.com/speaky-cli/speaky/internal/audio"
	"github.com/speaky-cli/speaky/internal/cache"
	"github.com/speaky-cli/speaky/internal/config"
	"github.com/speaky-cli/speaky/internal/tts"
	"github.com/speaky-cli/speaky/internal/tts/engines"
	"github.com/speaky-cli/speaky/internal/ttypes"
)

// DefaultPrompt is spoken when no text is given.
const DefaultPrompt = "What would you like me to say?"

// defaultStdinWait bounds how long a pipe that never writes can hold up an
// invocation. Once the first byte arrives stdin is read to EOF.
const defaultStdinWait = 2 * time.Second

// Flags that replace speaking with another action.
const (
	flagClearCache = "clear-cache"
	flagCacheInfo  = "cache-info"
	flagCachePath  = "cache-path"
	flagEditConfig = "edit-config"
	flagCompletion = "completion"
	flagMan        = "man"
)

// options are the command-line flags of an invocation.
type options struct {
	configFile string
	clipboard  bool
	noPlay     bool
	overrides  config.Overrides

	clearCache bool
	cacheInfo  bool
	cachePath  bool
	editConfig bool
	completion string
	man        bool
}

// action returns the name of the action flag that was set, or "" to speak.
func (o options) action() string {
	switch {
	case o.clearCache:
		return flagClearCache
	case o.cacheInfo:
		return flagCacheInfo
	case o.cachePath:
		return flagCachePath
	case o.editConfig:
		return flagEditConfig
	case o.completion != "":
		return flagCompletion
	case o.man:
		return flagMan
	}
	return ""
}

// app runs speaky's commands. Its dependencies are fields so tests can
// replace the network, the audio device and the terminal.
type app struct {
	stdin  io.Reader
	stdout io.Writer

	dotEnvFile    string
	stdinIsPipe   func() (bool, error)
	stdinWait     time.Duration
	readClipboard func() (string, error)

	newSynthesizer func(*config.Settings) (tts.Synthesizer, error)
	newSink        func(*config.Settings) (audio.Sink, error)

	logger *log.Logger
}

func newApp() *app {
	return &app{
		stdin:         os.Stdin,
		stdout:        os.Stdout,
		dotEnvFile:    config.DotEnvFile,
		stdinIsPipe:   stdinIsPipe,
		stdinWait:     defaultStdinWait,
		readClipboard: clipboard.ReadAll,
		newSynthesizer: func(s *config.Settings) (tts.Synthesizer, error) {
			return engines.NewOpenAIEngine(engines.OpenAIConfigFrom(s))
		},
		newSink: func(s *config.Settings) (audio.Sink, error) {
			return audio.New(s.Player, s.PlayerCommand, log.Default())
		},
		logger: log.Default(),
	}
}

// settings resolves the configuration. requireKey is false for commands that
// never contact the service.
func (a *app) settings(o options, requireKey bool) (*config.Settings, error) {
	v, err := config.NewViper(o.configFile)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		a.logger.Debug("Using configuration file", "path", used)
	}

	if err := config.LoadDotEnv(a.dotEnvFile); err != nil {
		return nil, err
	}

	var s *config.Settings
	if requireKey {
		s, err = config.Load(v, o.overrides)
	} else {
		s, err = config.LoadWithoutCredential(v, o.overrides)
	}
	if err != nil {
		return nil, err
	}

	setDebug(s.Debug)
	return s, nil
}

// speak resolves the text, fetches or synthesizes its audio and plays it.
func (a *app) speak(ctx context.Context, o options, args []string) error {
	s, err := a.settings(o, true)
	if err != nil {
		return err
	}

	text, err := a.text(ctx, o, args)
	if err != nil {
		return err
	}

	store, err := cache.Open(s.CacheDir)
	if err != nil {
		return err
	}

	synth, err := a.newSynthesizer(s)
	if err != nil {
		return err
	}

	path, err := tts.NewFetcher(store, synth, a.logger).FetchOrGenerate(ctx, tts.NewRequest(text, s))
	if err != nil {
		return err
	}

	if o.noPlay {
		_, err := fmt.Fprintln(a.stdout, path)
		return err
	}

	sink, err := a.newSink(s)
	if err != nil {
		return err
	}
	return sink.Play(ctx, path)
}

// text returns what to say: the joined arguments, the clipboard, piped
// stdin, or DefaultPrompt, in that order.
func (a *app) text(ctx context.Context, o options, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if o.clipboard {
		s, err := a.readClipboard()
		if err != nil {
			return "", ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to read clipboard", err)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
		return DefaultPrompt, nil
	}

	if yes, err := a.stdinIsPipe(); err != nil {
		return "", ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to inspect stdin", err)
	} else if yes {
		s, err := a.readStdin(ctx)
		if err != nil {
			return "", err
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}

	return DefaultPrompt, nil
}

// readStdin reads piped input to EOF. It returns "" if nothing arrives within
// a.stdinWait; the blocked read is abandoned and ends with the process.
func (a *app) readStdin(ctx context.Context) (string, error) {
	type result struct {
		b   []byte
		err error
	}

	started := make(chan struct{})
	done := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(&firstByteReader{r: a.stdin, started: started})
		done <- result{b, err}
	}()

	timer := time.NewTimer(a.stdinWait)
	defer timer.Stop()

	select {
	case <-started:
	case res := <-done:
		return stdinResult(res.b, res.err)
	case <-timer.C:
		a.logger.Debug("No input on stdin", "waited", a.stdinWait)
		return "", nil
	case <-ctx.Done():
		return "", ttypes.ConfigError(ttypes.CodeInterrupted, "interrupted while reading stdin", ctx.Err())
	}

	select {
	case res := <-done:
		return stdinResult(res.b, res.err)
	case <-ctx.Done():
		return "", ttypes.ConfigError(ttypes.CodeInterrupted, "interrupted while reading stdin", ctx.Err())
	}
}

func stdinResult(b []byte, err error) (string, error) {
	if err != nil {
		return "", ttypes.ConfigError(ttypes.CodeInvalidConfig, "unable to read stdin", err)
	}
	return string(b), nil
}

// firstByteReader closes started the first time a read returns data.
type firstByteReader struct {
	r       io.Reader
	once    sync.Once
	started chan struct{}
}

func (f *firstByteReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if n > 0 {
		f.once.Do(func() { close(f.started) })
	}
	return n, err
}

// clearCache deletes every cached entry. It does not need the API key.
func (a *app) clearCache(o options) error {
	s, err := a.settings(o, false)
	if err != nil {
		return err
	}

	store, err := cache.Open(s.CacheDir)
	if err != nil {
		return err
	}

	n, err := store.Clear()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.stdout, "Cleared %s from %s\n", english.Plural(n, "cached file", ""), store.Dir())
	return err
}

func stdinIsPipe() (bool, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
		return false, nil
	}
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// reportError prints err with the stage that failed.
func reportError(w io.Writer, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, ttypes.ErrInterrupted) {
		_, _ = fmt.Fprintln(w, "\nInterrupted by user")
		return
	}

	var te *ttypes.Error
	if errors.As(err, &te) {
		detail := te.Message
		if te.Cause != nil {
			detail += ": " + te.Cause.Error()
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", errorLabel(title.String(string(te.Stage))+" Error:"), detail)
		return
	}

	_, _ = fmt.Fprintf(w, "%s %v\n", errorLabel("Error:"), err)
}
