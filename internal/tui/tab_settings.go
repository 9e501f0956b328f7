package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"hunter/internal/storage"
	"hunter/internal/storage/models"
)

// settingField is one row of the settings tab. Fields with options cycle
// through them, the rest open a text input.
type settingField struct {
	key      string
	label    string
	hint     string
	fallback string
	options  []string
	// session fields end up in the trojan-go config and are locked while a
	// session runs.
	session bool
}

var settingFields = []settingField{
	{key: storage.SettingLocalAddr, label: "Listen Addr", hint: "SOCKS5 listen address of trojan-go", fallback: models.DefaultLocalAddr, session: true},
	{key: storage.SettingLocalPort, label: "Listen Port", hint: "SOCKS5 listen port of trojan-go", fallback: strconv.Itoa(models.DefaultLocalPort), session: true},
	{key: storage.SettingPAC, label: "PAC URL", hint: "Proxy auto-config script for the system proxy", fallback: models.DefaultPAC, session: true},
	{key: storage.SettingLogLevel, label: "Log Level", hint: "trojan-go log level", fallback: string(models.LogLevelInfo), session: true,
		options: []string{"trace", "debug", "info", "warn", "error"}},
	{key: storage.SettingLatencyWorkers, label: "Test Workers", hint: "Concurrent latency test workers", fallback: "10"},
	{key: storage.SettingLatencyTimeout, label: "Test Timeout", hint: "Latency test timeout in ms", fallback: "5000"},
	{key: storage.SettingMonitorInterval, label: "Watch Interval", hint: "Seconds between session checks in watch mode", fallback: "5"},
}

type settingsModel struct {
	settings map[string]string
	cursor   int
	editing  bool
	running  bool
	input    textinput.Model
	width    int
	height   int
}

func newSettingsModel() settingsModel {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = "> "
	ti.PromptStyle = selectedStyle
	ti.TextStyle = valueStyle

	return settingsModel{
		settings: make(map[string]string),
		input:    ti,
	}
}

func (sm *settingsModel) setSize(w, h int) {
	sm.width = w
	sm.height = h
	sm.input.Width = w / 2
}

func (sm *settingsModel) setSettings(s map[string]string) {
	sm.settings = s
}

// setRunning locks the session fields. An edit of a session field in
// progress is dropped when a session starts underneath it.
func (sm *settingsModel) setRunning(running bool) {
	sm.running = running
	if sm.editing && sm.locked(sm.field()) {
		sm.stopEditing()
	}
}

func (sm *settingsModel) field() settingField {
	return settingFields[min(max(sm.cursor, 0), len(settingFields)-1)]
}

func (sm *settingsModel) value(f settingField) string {
	if v, ok := sm.settings[f.key]; ok && v != "" {
		return v
	}
	return f.fallback
}

func (sm *settingsModel) locked(f settingField) bool {
	return f.session && sm.running
}

func (sm *settingsModel) stopEditing() {
	sm.editing = false
	sm.input.Blur()
}

func (sm *settingsModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	if sm.editing {
		return sm.updateInput(msg, root)
	}
	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}

	f := sm.field()
	step := 0
	switch k.String() {
	case "up", "k":
		sm.cursor = max(sm.cursor-1, 0)
		return nil
	case "down", "j":
		sm.cursor = min(sm.cursor+1, len(settingFields)-1)
		return nil
	case "left", "h":
		step = -1
	case "right", "l", "enter":
		step = 1
	default:
		return nil
	}

	if sm.locked(f) {
		root.setNotification("Disable the session to change "+f.label, true)
		return nil
	}
	if len(f.options) > 0 {
		return sm.save(root, f, cycle(f.options, sm.value(f), step))
	}
	if k.String() != "enter" {
		return nil
	}
	sm.editing = true
	sm.input.SetValue(sm.value(f))
	sm.input.Focus()
	return textinput.Blink
}

func (sm *settingsModel) updateInput(msg tea.Msg, root *Model) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, keys.Back):
			sm.stopEditing()
			return nil
		case k.String() == "enter":
			sm.stopEditing()
			return sm.save(root, sm.field(), strings.TrimSpace(sm.input.Value()))
		}
	}

	var cmd tea.Cmd
	sm.input, cmd = sm.input.Update(msg)
	return cmd
}

// save shows value at once. A failed save reloads the stored settings.
func (sm *settingsModel) save(root *Model, f settingField, value string) tea.Cmd {
	sm.settings[f.key] = value
	return saveSetting(root.ctrl, root.store, f.key, value)
}

// cycle returns the option step positions away from current, wrapping.
func cycle(options []string, current string, step int) string {
	i := 0
	for j, o := range options {
		if o == current {
			i = j
			break
		}
	}
	return options[(i+step+len(options))%len(options)]
}

func (sm *settingsModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")

	for i, f := range settingFields {
		selected := i == sm.cursor
		locked := sm.locked(f)

		label := labelStyle.Render("  " + f.label)
		if selected {
			label = selectedStyle.Width(18).Render("> " + f.label)
		}

		var value string
		switch {
		case selected && sm.editing:
			value = sm.input.View()
		case locked:
			value = dimStyle.Render(sm.value(f) + "  (locked)")
		case selected && len(f.options) > 0:
			value = renderOptions(f.options, sm.value(f))
		case selected:
			value = valueStyle.Render(sm.value(f))
		default:
			value = dimStyle.Render(sm.value(f))
		}
		b.WriteString(label + value + "\n")

		if selected && !sm.editing {
			b.WriteString(dimStyle.PaddingLeft(4).Render(sm.hintFor(f)) + "\n")
		}
	}

	return forceHeight(b.String(), sm.width, sm.height)
}

func (sm *settingsModel) hintFor(f settingField) string {
	switch {
	case sm.locked(f):
		return f.hint + "  (disable the session to change)"
	case len(f.options) > 0:
		return f.hint + "  (enter/arrows to change)"
	default:
		return f.hint + "  (enter to edit, default: " + f.fallback + ")"
	}
}

func renderOptions(options []string, current string) string {
	parts := make([]string, len(options))
	for i, o := range options {
		if o == current {
			parts[i] = selectedStyle.Render("[" + o + "]")
		} else {
			parts[i] = dimStyle.Render(" " + o + " ")
		}
	}
	return strings.Join(parts, " ")
}
