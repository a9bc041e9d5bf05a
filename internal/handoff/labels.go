package handoff

// Option labels shared by the engine's notifications and the dialog controller.
const (
	OptionContactManager = "Contact manager"
	OptionEndChat        = "End chat"
	OptionReject         = "Reject"
	OptionPending        = "Pending"

	// AcceptPrefix starts the manager's accept option; the rest is the user label.
	AcceptPrefix = "Accept chat with "
)

// MinRating and MaxRating bound a chat rating.
const (
	MinRating = 1
	MaxRating = 5
)
