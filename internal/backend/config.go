package backend

// Config is the backend's own configuration object. The client reads and
// writes it on behalf of the settings window; only System.Theme is
// interpreted here.
type Config struct {
	Sessions []SessionConfig `json:"sessions"`
	Mixer    MixerConfig     `json:"mixer"`
	Arduino  ArduinoConfig   `json:"arduino"`
	System   SystemConfig    `json:"system"`
}

type SessionConfig struct {
	Name     string          `json:"name"`
	Encoder  int             `json:"encoder,omitempty"`
	Keybinds []KeybindConfig `json:"keybinds,omitempty"`
}

type KeybindConfig struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

type MixerConfig struct {
	Enabled bool   `json:"enabled"`
	Hotkey  string `json:"hotkey,omitempty"`
}

type ArduinoConfig struct {
	Enabled  bool   `json:"enabled"`
	ComPort  string `json:"com_port"`
	BaudRate int    `json:"baud_rate"`
}

type SystemConfig struct {
	Autostart   bool   `json:"autostart"`
	ShowConsole bool   `json:"show_console"`
	Theme       string `json:"theme"`
}
