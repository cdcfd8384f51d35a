// Package protocol declares the messages exchanged between clients and the
// server along with the supporting value types. The transport layer is
// responsible for moving these values over the wire in whatever encoding it
// chooses; nothing in this package assumes a particular format.
package protocol

// ProtocolVersion is the version of the message protocol implemented by this
// server. Clients connecting with an older version are rejected.
const ProtocolVersion = 5

// MessageType identifies a protocol message.
type MessageType uint16

// Messages sent by clients.
const (
	ConnectType MessageType = iota + 1
	LoginType
	JoinType
	QueryServerType
	RequestChannelListType
	RequestUserListType
	RequestSourceListType
	RequestSourceType
	RequestMuteSourceType
	RequestMuteUserType
	ChannelChangeType
	ChannelEditType
	KickUserType
	BanUserType
	SetStatusType
	SetCommentType
	RegisterType
	RegistrationApprovalType
	AudioDataType
	AudioSourceStateChangeType
	RemoveSourceType
)

// Messages sent by the server.
const (
	ServerInfoType MessageType = iota + 0x80
	ConnectionRejectedType
	RedirectType
	LoginResultType
	JoinResultType
	PermissionsType
	PermissionDeniedType
	ChannelListType
	UserListType
	SourceListType
	SourceResultType
	SourcesRemovedType
	SourceMutedType
	UserMutedType
	ChannelChangeResultType
	UserChangedChannelType
	ChannelEditResultType
	UserJoinedType
	UserDisconnectedType
	UserKickedType
	UserUpdatedType
	RegisterResultType
	AudioDataRelayType
	AudioSourceStateChangedType
	QueryServerResultType
)

// Message is implemented by every protocol message in either direction.
type Message interface {
	MessageType() MessageType
}
