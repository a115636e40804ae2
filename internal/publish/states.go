package publish

// State is a position in the publish sequence.
type State string

const (
	StateLoggedOut      State = "LoggedOut"
	StateLoggedIn       State = "LoggedIn"
	StateEpisodeCreated State = "EpisodeCreated"
	StateAudioUploaded  State = "AudioUploaded"
	StateMetadataFilled State = "MetadataFilled"
	StateTypeSelected   State = "TypeSelected"
	StateAdOptionsSet   State = "AdOptionsSet"
	StateCoverUploaded  State = "CoverUploaded"
	StatePublished      State = "Published"
)

// StepPublishConfirmed names the optional confirmation-dialog step. It is not
// a state of its own: the run is Published once the dashboard accepts it.
const StepPublishConfirmed = "PublishConfirmed"

// AllStates lists states in sequence order.
var AllStates = []State{
	StateLoggedOut,
	StateLoggedIn,
	StateEpisodeCreated,
	StateAudioUploaded,
	StateMetadataFilled,
	StateTypeSelected,
	StateAdOptionsSet,
	StateCoverUploaded,
	StatePublished,
}

type stateTransition struct {
	from State
	to   State
}

var forwardTransitions = []stateTransition{
	{from: StateLoggedOut, to: StateLoggedIn},
	{from: StateLoggedIn, to: StateEpisodeCreated},
	{from: StateEpisodeCreated, to: StateAudioUploaded},
	{from: StateAudioUploaded, to: StateMetadataFilled},
	{from: StateMetadataFilled, to: StateTypeSelected},
	{from: StateTypeSelected, to: StateAdOptionsSet},
	{from: StateAdOptionsSet, to: StateCoverUploaded},
	{from: StateCoverUploaded, to: StatePublished},
}

var transitionSet = func() map[stateTransition]struct{} {
	set := make(map[stateTransition]struct{}, len(forwardTransitions))
	for _, t := range forwardTransitions {
		set[t] = struct{}{}
	}
	return set
}()

var requiredStates = map[State]struct{}{
	StateLoggedIn:       {},
	StateEpisodeCreated: {},
	StateAudioUploaded:  {},
	StatePublished:      {},
}

// CanTransition reports whether the workflow may move from one state to the
// next. Only single forward steps are legal.
func CanTransition(from, to State) bool {
	_, ok := transitionSet[stateTransition{from: from, to: to}]
	return ok
}

// IsRequired reports whether failing to reach state ends the run.
func (s State) IsRequired() bool {
	_, ok := requiredStates[s]
	return ok
}

// warningLabel is the human phrase used when an optional step fails.
func warningLabel(step string) string {
	switch step {
	case string(StateMetadataFilled):
		return "metadata fill"
	case string(StateTypeSelected):
		return "type selection"
	case string(StateAdOptionsSet):
		return "ad options"
	case string(StateCoverUploaded):
		return "cover upload"
	case StepPublishConfirmed:
		return "publish confirmation"
	default:
		return step
	}
}
