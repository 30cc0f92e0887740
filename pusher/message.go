package pusher

import "fmt"

type Channel string
type Event string

const (
	SystemLog Channel = "sys_log"
	Call      Event   = "call_event"
	Tip       Event   = "tip_event"
)

// TipChannel is the dashboard channel of one beneficiary
func TipChannel(beneficiaryId string) Channel {
	return Channel(fmt.Sprintf("tips-%s", beneficiaryId))
}
