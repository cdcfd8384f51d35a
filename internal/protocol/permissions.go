package protocol

// PermissionName identifies a gated operation.
type PermissionName string

const (
	CanRequestChannelList PermissionName = "RequestChannelList"
	CanRequestUserList    PermissionName = "RequestUserList"

	CanRequestSource              PermissionName = "RequestSource"
	CanSendAudio                  PermissionName = "SendAudio"
	CanSendAudioToMultipleTargets PermissionName = "SendAudioToMultipleTargets"
	CanMuteAudioSource            PermissionName = "MuteAudioSource"

	CanChangeChannel        PermissionName = "ChangeChannel"
	CanChangePlayersChannel PermissionName = "ChangePlayersChannel"
	CanCreateChannel        PermissionName = "CreateChannel"
	CanEditChannel          PermissionName = "EditChannel"
	CanDeleteChannel        PermissionName = "DeleteChannel"

	CanKickPlayerFromChannel PermissionName = "KickPlayerFromChannel"
	CanKickPlayerFromServer  PermissionName = "KickPlayerFromServer"
	CanMuteUser              PermissionName = "MuteUser"
	CanBanUser               PermissionName = "BanUser"
	CanApproveRegistrations  PermissionName = "ApproveRegistrations"
)

// Permission grants or denies a named operation, optionally scoped to a
// channel. A ChannelID of 0 applies everywhere a channel-scoped entry does
// not override it.
type Permission struct {
	Name      PermissionName
	ChannelID int
	Allowed   bool
}

// QueryServer asks for server information without establishing a session.
// It can arrive over a connection or through the connectionless query
// listener.
type QueryServer struct {
	ServerInfoOnly bool
}

func (QueryServer) MessageType() MessageType { return QueryServerType }

// QueryServerResult answers a QueryServer. Channels and Users are only
// populated when the guest permission set allows listing them.
type QueryServerResult struct {
	Info     ServerInfo
	Channels []ChannelInfo
	Users    []UserInfo
}

func (QueryServerResult) MessageType() MessageType { return QueryServerResultType }
