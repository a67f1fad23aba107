package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/speaky-cli/speaky/internal/audio"
	"github.com/speaky-cli/speaky/internal/cache"
	"github.com/speaky-cli/speaky/internal/config"
	"github.com/speaky-cli/speaky/internal/tts"
	"github.com/speaky-cli/speaky/internal/ttypes"
)

var settingsEnv = []string{
	"OPENAI_API_KEY",
	"OPENAI_BASE_URL",
	"SPEAKY_MODEL",
	"SPEAKY_VOICE",
	"SPEAKY_INSTRUCTIONS",
	"SPEAKY_CACHE_DIR",
	"SPEAKY_TIMEOUT",
	"SPEAKY_PLAYER",
	"SPEAKY_PLAYER_COMMAND",
	"SPEAKY_DEBUG",
}

// fakeSynth answers every request with "mp3:" followed by the text.
type fakeSynth struct {
	mu       sync.Mutex
	requests []tts.Request
	err      error
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("mp3:" + req.Text)), nil
}

type testEnv struct {
	app      *app
	opts     options
	synth    *fakeSynth
	sink     *audio.MockSink
	stdout   *bytes.Buffer
	cacheDir string

	synthsBuilt int
	sinksBuilt  int
}

// newTestEnv isolates the environment and returns an app whose network,
// audio device and terminal are fakes. The API key is set.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	for _, k := range settingsEnv {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	t.Setenv("SPEAKY_CACHE_DIR", cacheDir)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	configFile := filepath.Join(dir, "speaky.yml")
	if err := os.WriteFile(configFile, []byte("player: auto\n"), 0o644); err != nil { //nolint:gosec
		t.Fatalf("Failed to write config: %v", err)
	}

	env := &testEnv{
		opts:     options{configFile: configFile},
		synth:    &fakeSynth{},
		sink:     &audio.MockSink{},
		stdout:   &bytes.Buffer{},
		cacheDir: cacheDir,
	}
	env.app = &app{
		stdin:         strings.NewReader(""),
		stdout:        env.stdout,
		dotEnvFile:    filepath.Join(dir, ".env"),
		stdinIsPipe:   func() (bool, error) { return false, nil },
		stdinWait:     time.Second,
		readClipboard: func() (string, error) { return "", errors.New("no clipboard in tests") },
		newSynthesizer: func(*config.Settings) (tts.Synthesizer, error) {
			env.synthsBuilt++
			return env.synth, nil
		},
		newSink: func(*config.Settings) (audio.Sink, error) {
			env.sinksBuilt++
			return env.sink, nil
		},
		logger: log.New(io.Discard),
	}
	return env
}

func (e *testEnv) speak(t *testing.T, args ...string) error {
	t.Helper()
	return e.app.speak(context.Background(), e.opts, args)
}

func TestSpeakDefaultPrompt(t *testing.T) {
	env := newTestEnv(t)

	if err := env.speak(t); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	if len(env.synth.requests) != 1 {
		t.Fatalf("synthesized %d times, want 1", len(env.synth.requests))
	}
	if got := env.synth.requests[0].Text; got != DefaultPrompt {
		t.Errorf("text = %q, want %q", got, DefaultPrompt)
	}

	key := cache.Key(DefaultPrompt, config.DefaultVoice, config.DefaultInstructions)
	want := filepath.Join(env.cacheDir, key+cache.EntryExt)
	if played := env.sink.Played(); len(played) != 1 || played[0] != want {
		t.Errorf("played %v, want [%s]", played, want)
	}
}

func TestSpeakJoinsArguments(t *testing.T) {
	env := newTestEnv(t)

	if err := env.speak(t, "Hello", "big", "world"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	if got := env.synth.requests[0].Text; got != "Hello big world" {
		t.Errorf("text = %q, want %q", got, "Hello big world")
	}
}

func TestSpeakUsesCacheAcrossRuns(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		if err := env.speak(t, "Hi"); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if n := len(env.synth.requests); n != 1 {
		t.Errorf("synthesized %d times, want 1", n)
	}
	req := env.synth.requests[0]
	if req.Voice != config.DefaultVoice || req.Instructions != config.DefaultInstructions {
		t.Errorf("request = %+v", req)
	}

	played := env.sink.Played()
	if len(played) != 3 {
		t.Fatalf("played %d times, want 3", len(played))
	}
	if filepath.Base(played[0]) != "a1fc83ce1fef4a6e42625b17828a6fa3.mp3" {
		t.Errorf("entry = %s", played[0])
	}
	for _, p := range played[1:] {
		if p != played[0] {
			t.Errorf("played %s, want %s", p, played[0])
		}
	}

	data, err := os.ReadFile(played[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mp3:Hi" {
		t.Errorf("cached audio = %q", data)
	}
}

func TestSpeakMissingCredential(t *testing.T) {
	for _, key := range []string{"", "   "} {
		t.Run(fmt.Sprintf("%q", key), func(t *testing.T) {
			env := newTestEnv(t)
			t.Setenv("OPENAI_API_KEY", key)

			err := env.speak(t, "Hello")
			if !errors.Is(err, ttypes.ErrMissingCredential) {
				t.Fatalf("error = %v, want missing credential", err)
			}
			if ttypes.StageOf(err) != ttypes.StageConfiguration {
				t.Errorf("stage = %q", ttypes.StageOf(err))
			}
			if env.synthsBuilt != 0 || len(env.synth.requests) != 0 {
				t.Error("synthesizer used without a credential")
			}
			if env.sinksBuilt != 0 || len(env.sink.Played()) != 0 {
				t.Error("sink used without a credential")
			}
			if _, err := os.Stat(env.cacheDir); !os.IsNotExist(err) {
				t.Error("cache directory touched without a credential")
			}
		})
	}
}

func TestSpeakCredentialFromDotEnv(t *testing.T) {
	env := newTestEnv(t)
	os.Unsetenv("OPENAI_API_KEY") //nolint:errcheck

	if err := os.WriteFile(env.app.dotEnvFile, []byte("OPENAI_API_KEY=sk-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") }) //nolint:errcheck

	var got string
	env.app.newSynthesizer = func(s *config.Settings) (tts.Synthesizer, error) {
		got = s.APIKey
		return env.synth, nil
	}

	if err := env.speak(t, "Hello"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	if got != "sk-dotenv" {
		t.Errorf("API key = %q, want the .env value", got)
	}
}

func TestSpeakTextSources(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		clipboard bool
		clip      string
		piped     bool
		stdin     string
		want      string
	}{
		{name: "args win over stdin", args: []string{"from", "args"}, piped: true, stdin: "from stdin", want: "from args"},
		{name: "piped stdin", piped: true, stdin: "  from stdin\n", want: "from stdin"},
		{name: "empty piped stdin", piped: true, stdin: "\n", want: DefaultPrompt},
		{name: "clipboard", clipboard: true, clip: "copied text\n", want: "copied text"},
		{name: "empty clipboard", clipboard: true, clip: "", want: DefaultPrompt},
		{name: "empty argument", args: []string{""}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.app.stdin = strings.NewReader(tt.stdin)
			env.app.stdinIsPipe = func() (bool, error) { return tt.piped, nil }
			env.app.readClipboard = func() (string, error) { return tt.clip, nil }
			env.opts.clipboard = tt.clipboard

			if err := env.speak(t, tt.args...); err != nil {
				t.Fatalf("speak failed: %v", err)
			}
			if got := env.synth.requests[0].Text; got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

// silentPipe returns a piped stdin whose writer stays open until the test ends.
func silentPipe(t *testing.T, env *testEnv) *io.PipeWriter {
	t.Helper()

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	env.app.stdin = pr
	env.app.stdinIsPipe = func() (bool, error) { return true, nil }
	return pw
}

func TestSpeakSilentPipeUsesDefaultPrompt(t *testing.T) {
	env := newTestEnv(t)
	silentPipe(t, env)
	env.app.stdinWait = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- env.speak(t) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("speak failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("speak blocked on a pipe that never writes")
	}
	if got := env.synth.requests[0].Text; got != DefaultPrompt {
		t.Errorf("text = %q, want %q", got, DefaultPrompt)
	}
}

func TestSpeakSlowPipeIsReadToEOF(t *testing.T) {
	env := newTestEnv(t)
	pw := silentPipe(t, env)
	env.app.stdinWait = 50 * time.Millisecond

	go func() {
		_, _ = io.WriteString(pw, "hello")
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(pw, " world\n")
		_ = pw.Close()
	}()

	if err := env.speak(t); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	if got := env.synth.requests[0].Text; got != "hello world" {
		t.Errorf("text = %q, want %q", got, "hello world")
	}
}

func TestSpeakInterruptedWhileWaitingForStdin(t *testing.T) {
	env := newTestEnv(t)
	silentPipe(t, env)
	env.app.stdinWait = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := env.app.speak(ctx, env.opts, nil)
	if !errors.Is(err, ttypes.ErrInterrupted) {
		t.Errorf("error = %v, want interrupted", err)
	}
	if len(env.synth.requests) != 0 {
		t.Errorf("synthesized %d times after interrupt", len(env.synth.requests))
	}
}

func TestSpeakClipboardError(t *testing.T) {
	env := newTestEnv(t)
	env.opts.clipboard = true

	err := env.speak(t)
	if !errors.Is(err, ttypes.ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
	if len(env.synth.requests) != 0 {
		t.Error("synthesized after clipboard failure")
	}
}

func TestSpeakNoPlay(t *testing.T) {
	env := newTestEnv(t)
	env.opts.noPlay = true

	if err := env.speak(t, "Hello"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	key := cache.Key("Hello", config.DefaultVoice, config.DefaultInstructions)
	want := filepath.Join(env.cacheDir, key+cache.EntryExt) + "\n"
	if env.stdout.String() != want {
		t.Errorf("stdout = %q, want %q", env.stdout.String(), want)
	}
	if env.sinksBuilt != 0 {
		t.Error("sink built with --no-play")
	}
}

func TestSpeakOverrides(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.opts.configFile, []byte("voice: shimmer\nmodel: tts-1\n"), 0o644); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	env.opts.overrides = config.Overrides{Voice: "onyx", Instructions: "Whisper"}

	if err := env.speak(t, "Hello"); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	req := env.synth.requests[0]
	if req.Voice != "onyx" || req.Instructions != "Whisper" || req.Model != "tts-1" {
		t.Errorf("request = %+v", req)
	}
	if want := cache.Key("Hello", "onyx", "Whisper"); req.Key() != want {
		t.Errorf("key = %s, want %s", req.Key(), want)
	}
}

func TestSpeakFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*testEnv)
		wantStage ttypes.Stage
		wantEntry bool
	}{
		{
			name: "synthesis",
			setup: func(e *testEnv) {
				e.synth.err = ttypes.SynthesisError(ttypes.CodeAuthentication, "invalid API key", nil)
			},
			wantStage: ttypes.StageSynthesis,
		},
		{
			name: "playback",
			setup: func(e *testEnv) {
				e.sink.Err = ttypes.PlaybackError("no audio player found", audio.ErrDeviceUnavailable)
			},
			wantStage: ttypes.StagePlayback,
			wantEntry: true,
		},
		{
			name: "sink construction",
			setup: func(e *testEnv) {
				e.app.newSink = func(*config.Settings) (audio.Sink, error) {
					return nil, ttypes.PlaybackError("unable to open audio device", nil)
				}
			},
			wantStage: ttypes.StagePlayback,
			wantEntry: true,
		},
		{
			name: "cache directory",
			setup: func(e *testEnv) {
				if err := os.WriteFile(filepath.Join(filepath.Dir(e.cacheDir), "blocker"), nil, 0o644); err != nil { //nolint:gosec
					panic(err)
				}
				os.Setenv("SPEAKY_CACHE_DIR", filepath.Join(filepath.Dir(e.cacheDir), "blocker", "cache")) //nolint:errcheck
			},
			wantStage: ttypes.StageCache,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)

			err := env.speak(t, "Hello")
			if err == nil {
				t.Fatal("speak succeeded")
			}
			if got := ttypes.StageOf(err); got != tt.wantStage {
				t.Errorf("stage = %q, want %q (%v)", got, tt.wantStage, err)
			}

			key := cache.Key("Hello", config.DefaultVoice, config.DefaultInstructions)
			_, statErr := os.Stat(filepath.Join(env.cacheDir, key+cache.EntryExt))
			if exists := statErr == nil; exists != tt.wantEntry {
				t.Errorf("entry exists = %v, want %v", exists, tt.wantEntry)
			}
		})
	}
}

func TestClearCacheWithoutCredential(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	if err := os.MkdirAll(env.cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"f1b6cf508d4d612c5bf9ada66b537f72.mp3",
		"d77c7b5170e1933fc856d49a4ccbed9e.mp3",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(env.cacheDir, name), []byte("x"), 0o644); err != nil { //nolint:gosec
			t.Fatal(err)
		}
	}

	if err := env.app.clearCache(env.opts); err != nil {
		t.Fatalf("clearCache failed: %v", err)
	}

	want := fmt.Sprintf("Cleared 2 cached files from %s\n", env.cacheDir)
	if env.stdout.String() != want {
		t.Errorf("stdout = %q, want %q", env.stdout.String(), want)
	}

	entries, err := os.ReadDir(env.cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("remaining entries = %v", entries)
	}
	if env.synthsBuilt != 0 || env.sinksBuilt != 0 {
		t.Error("clearing the cache built a synthesizer or sink")
	}
}

func TestClearCacheEmpty(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		env.stdout.Reset()
		if err := env.app.clearCache(env.opts); err != nil {
			t.Fatalf("clearCache failed: %v", err)
		}
		if want := fmt.Sprintf("Cleared 0 cached files from %s\n", env.cacheDir); env.stdout.String() != want {
			t.Errorf("stdout = %q, want %q", env.stdout.String(), want)
		}
	}
}

func TestCacheStatsAndPath(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("OPENAI_API_KEY", "")

	if err := os.MkdirAll(env.cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.cacheDir, "f1b6cf508d4d612c5bf9ada66b537f72.mp3"), make([]byte, 2048), 0o644); err != nil { //nolint:gosec
		t.Fatal(err)
	}

	if err := env.app.cacheStats(env.opts); err != nil {
		t.Fatalf("cacheStats failed: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{env.cacheDir, "Entries:   1", "Size:      2.0 kB"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output %q missing %q", out, want)
		}
	}

	env.stdout.Reset()
	if err := env.app.cachePath(env.opts); err != nil {
		t.Fatalf("cachePath failed: %v", err)
	}
	if env.stdout.String() != env.cacheDir+"\n" {
		t.Errorf("path output = %q", env.stdout.String())
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "configuration",
			err:  ttypes.ConfigError(ttypes.CodeMissingCredential, "OPENAI_API_KEY not found in environment variables", nil),
			want: []string{"Configuration Error:", "OPENAI_API_KEY not found"},
		},
		{
			name: "synthesis",
			err:  ttypes.SynthesisError(ttypes.CodeService, "speech request failed", errors.New("status 500")),
			want: []string{"Synthesis Error:", "speech request failed: status 500"},
		},
		{
			name: "cache",
			err:  ttypes.CacheError("unable to create cache directory", nil),
			want: []string{"Cache Error:", "unable to create cache directory"},
		},
		{
			name: "playback",
			err:  fmt.Errorf("play: %w", ttypes.PlaybackError("mpv failed", nil)),
			want: []string{"Playback Error:", "mpv failed"},
		},
		{
			name: "interrupted synthesis",
			err:  ttypes.SynthesisError(ttypes.CodeInterrupted, "synthesis canceled", context.Canceled),
			want: []string{"Interrupted by user"},
		},
		{
			name: "interrupted playback",
			err:  ttypes.PlaybackError("playback interrupted", context.Canceled),
			want: []string{"Interrupted by user"},
		},
		{
			name: "untyped",
			err:  errors.New(`unknown flag: --loud`),
			want: []string{"Error:", "unknown flag: --loud"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestEnsureConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "speaky.yml")

	got, err := ensureConfigFile(file)
	if err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}
	if got != file {
		t.Errorf("file = %s, want %s", got, file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != config.DefaultConfigYAML {
		t.Error("new config file does not hold the defaults")
	}

	if err := os.WriteFile(file, []byte("voice: onyx\n"), 0o644); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	if _, err := ensureConfigFile(file); err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}
	if data, _ := os.ReadFile(file); string(data) != "voice: onyx\n" {
		t.Error("existing config file was overwritten")
	}

	if _, err := ensureConfigFile(filepath.Join(t.TempDir(), "speaky.toml")); err == nil {
		t.Error("accepted a .toml config file")
	}
}

func TestDefaultConfigParses(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.opts.configFile, []byte(config.DefaultConfigYAML), 0o644); err != nil { //nolint:gosec
		t.Fatal(err)
	}

	s, err := env.app.settings(env.opts, true)
	if err != nil {
		t.Fatalf("settings failed: %v", err)
	}
	if s.Voice != config.DefaultVoice || s.Model != config.DefaultModel || s.Player != config.PlayerAuto {
		t.Errorf("settings = %+v", s)
	}
}

func TestCommandWordsAreSpoken(t *testing.T) {
	if rootCmd.HasSubCommands() {
		t.Fatalf("root command has subcommands %v", rootCmd.Commands())
	}

	tests := [][]string{
		{"cache", "clear"},
		{"cache", "is", "full"},
		{"config"},
		{"man"},
		{"completion", "bash"},
		{"help", "me"},
	}

	for _, words := range tests {
		t.Run(strings.Join(words, " "), func(t *testing.T) {
			cmd, rest, err := rootCmd.Find(words)
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if cmd != rootCmd {
				t.Errorf("%q resolved to command %q", words, cmd.Name())
			}
			if strings.Join(rest, " ") != strings.Join(words, " ") {
				t.Errorf("args = %q, want %q", rest, words)
			}

			env := newTestEnv(t)
			if err := env.speak(t, rest...); err != nil {
				t.Fatalf("speak failed: %v", err)
			}
			if got, want := env.synth.requests[0].Text, strings.Join(words, " "); got != want {
				t.Errorf("text = %q, want %q", got, want)
			}
		})
	}
}

func TestOptionsAction(t *testing.T) {
	tests := []struct {
		name string
		o    options
		want string
	}{
		{"speak", options{clipboard: true, noPlay: true}, ""},
		{"clear cache", options{clearCache: true}, flagClearCache},
		{"cache info", options{cacheInfo: true}, flagCacheInfo},
		{"cache path", options{cachePath: true}, flagCachePath},
		{"edit config", options{editConfig: true}, flagEditConfig},
		{"completion", options{completion: "zsh"}, flagCompletion},
		{"man", options{man: true}, flagMan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.action(); got != tt.want {
				t.Errorf("action() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCompletion(t *testing.T) {
	for _, shell := range completionShells {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeCompletion(&buf, rootCmd, shell); err != nil {
				t.Fatalf("writeCompletion failed: %v", err)
			}
			if !strings.Contains(buf.String(), "speaky") {
				t.Error("completion script does not mention speaky")
			}
		})
	}

	err := writeCompletion(io.Discard, rootCmd, "tcsh")
	if !errors.Is(err, ttypes.ErrConfiguration) {
		t.Errorf("error = %v, want configuration error", err)
	}
}

func TestWriteManPage(t *testing.T) {
	var buf bytes.Buffer
	if err := writeManPage(&buf, rootCmd); err != nil {
		t.Fatalf("writeManPage failed: %v", err)
	}
	out := strings.ToLower(buf.String())
	for _, want := range []string{"speaky", "clear-cache", "cache-info"} {
		if !strings.Contains(out, want) {
			t.Errorf("man page missing %q", want)
		}
	}
}
