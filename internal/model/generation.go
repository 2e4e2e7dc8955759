package model

import "fmt"

// Mode selects the kind of generation a prompt asks for.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

// Generation costs in credits.
const (
	TextCost  int64 = 1
	ImageCost int64 = 2
)

// ParseMode converts a wire value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeText, ModeImage:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}

// Cost returns the number of credits one request in this mode consumes.
func (m Mode) Cost() int64 {
	switch m {
	case ModeImage:
		return ImageCost
	case ModeText:
		return TextCost
	default:
		return 0
	}
}

// IsImage reports whether the mode produces an image.
func (m Mode) IsImage() bool {
	return m == ModeImage
}

// RequestState tracks how far a message request progressed.
type RequestState string

const (
	StateReceived      RequestState = "received"
	StateCreditChecked RequestState = "credit_checked"
	StateGenerating    RequestState = "generating"
	StatePersisting    RequestState = "persisting"
	StateDebited       RequestState = "debited"
	StateResponded     RequestState = "responded"
	StateFailed        RequestState = "failed"
)

// CreditHold is a reservation against a user's balance taken before an
// external generation call. It does not change the balance itself.
type CreditHold struct {
	ID     string
	UserID string
	Amount int64
}
