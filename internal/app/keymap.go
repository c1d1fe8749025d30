package app

// Key binding constants used in handleKey.
const (
	KeyQuit           = "q"
	KeyQuitUpper      = "Q"
	KeyCtrlC          = "ctrl+c"
	KeySpace          = " "
	KeyTab            = "tab"
	KeyShiftTab       = "shift+tab"
	KeyEsc            = "esc"
	KeyUp             = "up"
	KeyDown           = "down"
	KeyJ              = "j"
	KeyK              = "k"
	KeyEnter          = "enter"
	KeyScan           = "s"
	KeyTogglePossible = "p"
	KeyHistory        = "h"
	KeyDelete         = "d"
	KeyRefresh        = "R"
	KeyRubric         = "ctrl+r"
	KeyPgUp           = "pgup"
	KeyPgDown         = "pgdown"
)
