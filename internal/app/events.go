package app

// User identifies the sender of an event.
type User struct {
	ID       int64
	Username string
	FullName string
}

// DisplayName prefers the full name, then the username.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// EventKind distinguishes the inputs a transport can deliver.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventText
	EventAction
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	case EventAction:
		return "action"
	default:
		return "unknown"
	}
}

// Event is a transport input normalized for the router.
type Event struct {
	User User
	Kind EventKind
	// Command is the command name without the leading slash; Args is the rest of the line.
	Command string
	Args    string
	Text    string
	Action  Action
}

// CommandEvent builds a command event.
func CommandEvent(user User, command, args string) Event {
	return Event{User: user, Kind: EventCommand, Command: command, Args: args}
}

// TextEvent builds a free text event.
func TextEvent(user User, text string) Event {
	return Event{User: user, Kind: EventText, Text: text}
}

// ActionEvent builds a button press event.
func ActionEvent(user User, action Action) Event {
	return Event{User: user, Kind: EventAction, Action: action}
}

// Reply is one outgoing message with an optional inline keyboard.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

// Button is a keyboard button bound to an action.
type Button struct {
	Text   string
	Action Action
}

func textReply(text string) Reply {
	return Reply{Text: text}
}

func row(buttons ...Button) []Button {
	return buttons
}
