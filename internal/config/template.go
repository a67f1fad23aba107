package config

// DefaultConfigYAML is written by `speaky --edit-config` when no config file exists.
// The API key is read from the environment only.
const DefaultConfigYAML = `# speech model
model: "gpt-4o-mini-tts"
# voice persona (alloy, ash, ballad, coral, echo, fable, nova, onyx, sage, shimmer)
voice: "nova"
# delivery instructions sent with every request
instructions: "Speak in a cheerful, positive yet professional tone."

# where synthesized audio is cached (default: the platform cache directory)
# cache_dir: "~/.cache/speaky"

# alternative API endpoint
# base_url: "https://api.openai.com/v1"

# request timeout, including the audio download (0 disables it)
timeout: "2m"

# playback backend: auto, oto, or command
player: "auto"
# external player used by the command backend, e.g. "mpv --no-video"
# player_command: ""

debug: false
`
