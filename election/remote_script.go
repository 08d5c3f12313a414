package election

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/magnopus-opensource/csp-realtime/transport"
)

// ChannelRemoteRunScript carries RemoteRunScriptMessage payloads: a
// non-owning client asks the leader to run a script update in its context,
// preserving single-writer semantics on shared script state (spec.md
// §4.8, §4.9).
const ChannelRemoteRunScript = "RemoteRunScriptMessage"

// RemoteRunScriptMessage is the decoded {contextId, scriptText} payload.
type RemoteRunScriptMessage struct {
	ContextID  uint64 `mapstructure:"contextId"`
	ScriptText string `mapstructure:"scriptText"`
}

// SendRemoteRunScript asks leaderID to execute scriptText against the
// script context identified by contextID.
func (le *LeaderElection) SendRemoteRunScript(ctx context.Context, leaderID, contextID uint64, scriptText string) error {
	return le.transport.SendNetworkEventToClient(ctx, transport.NetworkEvent{
		Channel:        ChannelRemoteRunScript,
		TargetClientID: &leaderID,
		Payload:        map[string]any{"contextId": contextID, "scriptText": scriptText},
	})
}

// DecodeRemoteRunScript decodes an inbound transport.NetworkEvent on
// ChannelRemoteRunScript. The caller (multiplayer/online.Engine) is
// responsible for checking IsLeader before actually running the script.
func DecodeRemoteRunScript(event transport.NetworkEvent) (RemoteRunScriptMessage, error) {
	var msg RemoteRunScriptMessage
	err := mapstructure.Decode(event.Payload, &msg)
	return msg, err
}
