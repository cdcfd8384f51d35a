package protocol

// ChannelInfo describes a channel in the server's channel tree.
type ChannelInfo struct {
	// 0 means the channel has not been saved yet; assigned ids start at 1.
	ChannelID   int
	Name        string
	Description string
	// 0 means the channel hangs off the root.
	ParentChannelID int
	// Maximum number of occupants. 0 means unlimited.
	UserLimit int
	// Provider-managed channels (such as a lobby) that users cannot edit
	// or delete.
	ReadOnly bool
}

// ChannelEditResultState describes the outcome of a channel edit.
type ChannelEditResultState int

const (
	ChannelEditSucceeded ChannelEditResultState = iota
	ChannelEditFailedUnknown
	ChannelEditFailedPermissions
	ChannelEditFailedUnknownChannel
	ChannelEditFailedInvalidName
	ChannelEditFailedReadOnly
	ChannelEditFailedLastChannel
	ChannelEditFailedUpdateNotSupported
)

// RequestChannelList asks for a snapshot of the channel tree.
type RequestChannelList struct{}

func (RequestChannelList) MessageType() MessageType { return RequestChannelListType }

// ChannelEdit creates, updates, or deletes a channel. A zero ChannelID on a
// non-delete edit creates a new channel.
type ChannelEdit struct {
	Channel ChannelInfo
	Delete  bool
}

func (ChannelEdit) MessageType() MessageType { return ChannelEditType }

// ChannelListMessage is a snapshot of the channel tree.
type ChannelListMessage struct {
	Channels         []ChannelInfo
	DefaultChannelID int
}

func (ChannelListMessage) MessageType() MessageType { return ChannelListType }

// ChannelEditResultMessage reports the outcome of a ChannelEdit to the
// requester only. List updates reach everyone through ChannelListMessage.
type ChannelEditResultMessage struct {
	State     ChannelEditResultState
	ChannelID int
}

func (ChannelEditResultMessage) MessageType() MessageType { return ChannelEditResultType }
