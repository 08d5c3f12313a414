package main

import (
	"fmt"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/config"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
	"github.com/magnopus-opensource/csp-realtime/multiplayer/online"
	"github.com/magnopus-opensource/csp-realtime/transport/fake"
)

// Creates an avatar through the online engine against an in-memory hub,
// walking the four-step continuation (generate id, send full state, await
// ack, commit + callback) without a real socket.
func main() {
	t := fake.New()
	t.NextIDs = []uint64{7}

	eng := online.New(t, 1, config.NewConfig())

	eng.CreateAvatar("Player One", "user-1", common.Vector3{}, common.Vector4{W: 1}, true, "avatar-1",
		common.AvatarPlayModeDefault, func(e *multiplayer.SpaceEntity) {
			if e == nil {
				fmt.Println("create failed")
				return
			}
			fmt.Printf("created avatar id=%d, hub messages sent=%d\n", e.ID(), len(t.SentMessages))
		})
}
