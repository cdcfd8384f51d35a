package protocol

// Bounds for the codec parameters attached to an audio source. Each
// parameter is validated independently so clients get a specific failure
// reason back.
const (
	MinCodecBitrate = 8000
	MaxCodecBitrate = 320000

	MinAudioChannels = 1
	MaxAudioChannels = 2

	MinFrequency = 8000
	MaxFrequency = 96000

	MinFrameSize = 64
	MaxFrameSize = 4096

	MinComplexity = 0
	MaxComplexity = 10
)

// AudioSource is a named, owner-scoped audio stream registration.
type AudioSource struct {
	// Unique per server and monotonically assigned; ids are never reused
	// while a source with a lower id still exists.
	ID int
	// Unique per owning user.
	Name    string
	OwnerID int

	Bitrate    int
	Channels   int
	Frequency  int
	FrameSize  int
	Complexity int

	IsMuted bool
}

// SourceResultState describes the outcome of a source request.
type SourceResultState int

const (
	SourceSucceeded SourceResultState = iota
	// SourceNewSource is the state used when announcing another user's new
	// source; the payload is otherwise identical to a Succeeded reply.
	SourceNewSource
	SourceFailedUnknown
	SourceFailedPermissions
	SourceFailedInvalidName
	SourceFailedDuplicateSourceName
	SourceFailedInvalidBitrate
	SourceFailedInvalidChannels
	SourceFailedInvalidFrequency
	SourceFailedInvalidFrameSize
	SourceFailedInvalidComplexity
	SourceFailedLimit
)

// TargetType selects how audio is routed.
type TargetType int

const (
	TargetChannels TargetType = iota
	TargetUsers
)

// RequestSourceList asks for a snapshot of all registered sources.
type RequestSourceList struct{}

func (RequestSourceList) MessageType() MessageType { return RequestSourceListType }

// RequestSource registers a new audio source for the requester. A Bitrate of
// 0 asks for the server default.
type RequestSource struct {
	Name       string
	Bitrate    int
	Channels   int
	Frequency  int
	FrameSize  int
	Complexity int
}

func (RequestSource) MessageType() MessageType { return RequestSourceType }

// RequestMuteSource toggles the mute flag on a source.
type RequestMuteSource struct {
	SourceID int
}

func (RequestMuteSource) MessageType() MessageType { return RequestMuteSourceType }

// AudioData carries encoded audio frames from a source to a set of targets.
// The server relays the frames verbatim; it never inspects them.
type AudioData struct {
	SourceID   int
	TargetType TargetType
	TargetIDs  []int
	Frames     [][]byte
}

func (AudioData) MessageType() MessageType { return AudioDataType }

// AudioSourceStateChange signals that a source started or stopped sending.
type AudioSourceStateChange struct {
	SourceID   int
	Starting   bool
	TargetType TargetType
	TargetIDs  []int
}

func (AudioSourceStateChange) MessageType() MessageType { return AudioSourceStateChangeType }

// RemoveSource asks the server to drop a source the requester owns. Requests
// for sources owned by someone else are ignored.
type RemoveSource struct {
	SourceID int
}

func (RemoveSource) MessageType() MessageType { return RemoveSourceType }

// SourceListMessage is a snapshot of every registered source.
type SourceListMessage struct {
	Sources []AudioSource
}

func (SourceListMessage) MessageType() MessageType { return SourceListType }

// SourceResultMessage reports the outcome of a source request. Succeeded goes
// to the requester; NewSource is broadcast to everyone else.
type SourceResultMessage struct {
	State SourceResultState
	// Name from the request, echoed back even when creation failed.
	SourceName string
	Source     AudioSource
}

func (SourceResultMessage) MessageType() MessageType { return SourceResultType }

// SourcesRemovedMessage announces removed sources. It is sent before the
// removal is finalized so receivers can stop playback cleanly.
type SourcesRemovedMessage struct {
	Sources []AudioSource
}

func (SourcesRemovedMessage) MessageType() MessageType { return SourcesRemovedType }

// SourceMuted announces a source's new mute state.
type SourceMuted struct {
	SourceID int
	IsMuted  bool
}

func (SourceMuted) MessageType() MessageType { return SourceMutedType }

// AudioDataRelay delivers relayed audio frames to a receiving client.
type AudioDataRelay struct {
	SourceID int
	Frames   [][]byte
}

func (AudioDataRelay) MessageType() MessageType { return AudioDataRelayType }

// AudioSourceStateChanged delivers a relayed source state change.
type AudioSourceStateChanged struct {
	SourceID int
	Starting bool
}

func (AudioSourceStateChanged) MessageType() MessageType { return AudioSourceStateChangedType }
