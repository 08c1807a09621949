package domain

type ControllerID string

// Controller is a pairing record binding a controller device connection
// to the user hosting a room. A user holds at most one at a time.
type Controller struct {
	ID    ControllerID
	Owner UserID
	Conn  ConnID
}
