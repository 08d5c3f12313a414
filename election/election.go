// Package election implements the bully-style leader election described in
// spec.md §4.8: a state machine (Idle, Requested, Electing, Leader) driven
// by messages exchanged over transport.HubTransport's
// SendNetworkEventToClient channel. It decodes the generic
// map[string]any payload of an inbound transport.NetworkEvent with
// mitchellh/mapstructure — the teacher's go.mod declares this dependency
// but no retrieved teacher file exercises it; this is its assigned home
// (SPEC_FULL.md DOMAIN STACK).
package election

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/transport"
)

// State is one of the four states of the bully algorithm's local view.
type State uint8

const (
	StateIdle State = iota
	StateRequested
	StateElecting
	StateLeader
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "Requested"
	case StateElecting:
		return "Electing"
	case StateLeader:
		return "Leader"
	default:
		return "Idle"
	}
}

// MessageType enumerates ClientElectionMessage.type values (spec.md §4.8).
type MessageType string

const (
	MsgElection             MessageType = "Election"
	MsgElectionResponse     MessageType = "ElectionResponse"
	MsgElectionLeader       MessageType = "ElectionLeader"
	MsgElectionNotifyLeader MessageType = "ElectionNotifyLeader"
	MsgLeaderHeartbeat      MessageType = "LeaderHeartbeat"
	MsgLeaderLost           MessageType = "LeaderLost"
)

// ElectionMessage is the decoded shape of a ClientElectionMessage payload:
// {type, clientId, eventId}.
type ElectionMessage struct {
	Type    MessageType `mapstructure:"type"`
	ClientID uint64      `mapstructure:"clientId"`
	EventID  string      `mapstructure:"eventId"`
}

// ChannelClientElection is the SendNetworkEventToClient channel name
// carrying ElectionMessage payloads (spec.md §4.8, "a dedicated channel
// ClientElectionMessage").
const ChannelClientElection = "ClientElectionMessage"

// LeaderChangedCallback fires whenever this client's view of the current
// leader changes, including becoming leader itself.
type LeaderChangedCallback func(leaderID uint64, isSelf bool)

// LeaderElection runs the bully algorithm against a set of known client
// ids, backed by a HubTransport for message exchange.
type LeaderElection struct {
	mu sync.Mutex

	selfID            uint64
	transport         transport.HubTransport
	log               common.Logger
	heartbeatInterval time.Duration

	state            State
	knownClients     map[uint64]bool
	leaderID         uint64
	hasLeader        bool
	expectedLeader   uint64
	pendingResponses map[uint64]bool
	lastHeartbeat    time.Time
	lostReports      map[uint64]bool

	onLeaderChanged LeaderChangedCallback

	stopHeartbeat chan struct{}
}

func New(selfID uint64, t transport.HubTransport, log common.Logger, heartbeatInterval time.Duration) *LeaderElection {
	if log == nil {
		log = common.DefaultLogger()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	return &LeaderElection{
		selfID:            selfID,
		transport:         t,
		log:               log,
		heartbeatInterval: heartbeatInterval,
		knownClients:      map[uint64]bool{selfID: true},
		pendingResponses:  make(map[uint64]bool),
		lostReports:       make(map[uint64]bool),
	}
}

func (le *LeaderElection) SetOnLeaderChanged(cb LeaderChangedCallback) {
	le.mu.Lock()
	le.onLeaderChanged = cb
	le.mu.Unlock()
}

func (le *LeaderElection) State() State {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.state
}

func (le *LeaderElection) IsLeader() bool {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.hasLeader && le.leaderID == le.selfID
}

// Leader returns the currently known leader id, or false if no leader has
// been established yet.
func (le *LeaderElection) Leader() (uint64, bool) {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.leaderID, le.hasLeader
}

// NoteClientJoined registers id as a known participant. Per spec.md §4.8,
// when the scope has exactly one avatar (self) the sole client becomes
// leader immediately; with more than one, the earliest joiner (tracked by
// the caller's join order, here simply "the first one registered after
// self") is treated as the initial leader until an election says
// otherwise.
func (le *LeaderElection) NoteClientJoined(id uint64) {
	le.mu.Lock()
	defer le.mu.Unlock()
	le.knownClients[id] = true
	if !le.hasLeader {
		if len(le.knownClients) == 1 {
			le.setLeaderLocked(le.selfID)
		} else if id != le.selfID {
			le.setLeaderLocked(id)
		}
	}
}

func (le *LeaderElection) NoteClientLeft(id uint64) {
	le.mu.Lock()
	delete(le.knownClients, id)
	wasLeader := le.hasLeader && le.leaderID == id
	le.mu.Unlock()
	if wasLeader {
		le.StartElection(context.Background())
	}
}

func (le *LeaderElection) setLeaderLocked(id uint64) {
	le.leaderID = id
	le.hasLeader = true
	le.state = StateLeader
	if id != le.selfID {
		le.state = StateIdle
	}
	cb := le.onLeaderChanged
	self := id == le.selfID
	go func() {
		if cb != nil {
			cb(id, self)
		}
	}()
}

// StartElection begins a bully round: if self has the highest known id, it
// wins immediately; otherwise it sends Election to every higher-id peer and
// waits for responses (spec.md §4.8).
func (le *LeaderElection) StartElection(ctx context.Context) {
	le.mu.Lock()
	higher := le.higherPeersLocked()
	le.state = StateElecting
	le.mu.Unlock()

	if len(higher) == 0 {
		le.announceLeader(ctx, le.selfID)
		return
	}

	le.mu.Lock()
	le.pendingResponses = make(map[uint64]bool, len(higher))
	for _, id := range higher {
		le.pendingResponses[id] = true
	}
	le.mu.Unlock()

	for _, id := range higher {
		le.send(ctx, MsgElection, id)
	}
}

func (le *LeaderElection) higherPeersLocked() []uint64 {
	var out []uint64
	for id := range le.knownClients {
		if id > le.selfID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (le *LeaderElection) announceLeader(ctx context.Context, id uint64) {
	le.mu.Lock()
	le.setLeaderLocked(id)
	le.mu.Unlock()
	le.broadcast(ctx, MsgElectionLeader)
}

func (le *LeaderElection) send(ctx context.Context, t MessageType, target uint64) {
	_ = le.transport.SendNetworkEventToClient(ctx, transport.NetworkEvent{
		Channel:        ChannelClientElection,
		TargetClientID: &target,
		Payload:        map[string]any{"type": string(t), "clientId": le.selfID},
	})
}

func (le *LeaderElection) broadcast(ctx context.Context, t MessageType) {
	_ = le.transport.SendNetworkEventToClient(ctx, transport.NetworkEvent{
		Channel: ChannelClientElection,
		Payload: map[string]any{"type": string(t), "clientId": le.selfID},
	})
}

// HandleNetworkEvent decodes an inbound election channel payload and
// advances the state machine. Non-election channels are ignored so callers
// can route every transport.Handlers.OnNetworkEvent call through here
// unconditionally.
func (le *LeaderElection) HandleNetworkEvent(ctx context.Context, event transport.NetworkEvent) {
	if event.Channel != ChannelClientElection {
		return
	}
	var msg ElectionMessage
	if err := mapstructure.Decode(event.Payload, &msg); err != nil {
		le.log.Printf("election: malformed payload: %v", err)
		return
	}

	switch msg.Type {
	case MsgElection:
		le.send(ctx, MsgElectionResponse, msg.ClientID)
		go le.StartElection(ctx)
	case MsgElectionResponse:
		le.mu.Lock()
		delete(le.pendingResponses, msg.ClientID)
		le.mu.Unlock()
	case MsgElectionLeader:
		le.mu.Lock()
		le.setLeaderLocked(msg.ClientID)
		le.mu.Unlock()
	case MsgElectionNotifyLeader:
		le.mu.Lock()
		expected := le.expectedLeader
		le.expectedLeader = msg.ClientID
		le.mu.Unlock()
		if expected != 0 && expected != msg.ClientID {
			le.StartElection(ctx)
		}
	case MsgLeaderHeartbeat:
		le.mu.Lock()
		le.lastHeartbeat = time.Now()
		le.lostReports = make(map[uint64]bool)
		le.mu.Unlock()
	case MsgLeaderLost:
		le.mu.Lock()
		le.lostReports[msg.ClientID] = true
		majority := len(le.lostReports)*2 > len(le.knownClients)
		le.mu.Unlock()
		if majority {
			le.StartElection(ctx)
		}
	}
}

// CheckHeartbeat is called periodically by the owning engine; it reports
// LeaderLost if no heartbeat has been observed for 3x the configured
// interval (spec.md §4.8).
func (le *LeaderElection) CheckHeartbeat(ctx context.Context) {
	le.mu.Lock()
	isLeader := le.hasLeader && le.leaderID == le.selfID
	stale := le.hasLeader && !isLeader && time.Since(le.lastHeartbeat) > 3*le.heartbeatInterval
	le.mu.Unlock()

	if isLeader {
		le.broadcast(ctx, MsgLeaderHeartbeat)
		return
	}
	if stale {
		le.broadcast(ctx, MsgLeaderLost)
	}
}

// NotifyLateJoiner sends ElectionNotifyLeader to a newly joined avatar so
// it can detect a leader disagreement and trigger re-election (spec.md
// §4.8).
func (le *LeaderElection) NotifyLateJoiner(ctx context.Context, newClientID uint64) {
	le.mu.Lock()
	leader := le.leaderID
	hasLeader := le.hasLeader
	le.mu.Unlock()
	if !hasLeader {
		return
	}
	_ = le.transport.SendNetworkEventToClient(ctx, transport.NetworkEvent{
		Channel:        ChannelClientElection,
		TargetClientID: &newClientID,
		Payload:        map[string]any{"type": string(MsgElectionNotifyLeader), "clientId": leader},
	})
}
