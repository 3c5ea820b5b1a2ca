package events

const (
	TopicCompletion  = "ril.completion"
	TopicUnsolicited = "ril.unsolicited"
	TopicRadioState  = "radio.state"
	TopicTokensCheck = "tokens.check"
	TopicChannel     = "channel.status"
	TopicFrameIn     = "frame.in"
	TopicFrameOut    = "frame.out"
)
