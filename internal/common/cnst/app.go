package cnst

const (
	AppName     = "tether"
	CommandName = "tether"
)
