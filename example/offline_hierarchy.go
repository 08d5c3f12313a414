package main

import (
	"fmt"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/csp"
	"github.com/magnopus-opensource/csp-realtime/multiplayer"
)

// Builds a parent/child pair in an offline space, prints the child's
// resolved global position, then destroys the parent and shows the child
// get reparented to root rather than destroyed with it.
func main() {
	f := csp.NewOfflineFoundation(nil)

	var parent, child *multiplayer.SpaceEntity
	f.Engine().CreateEntity("Root", common.Vector3{X: 1, Y: 0, Z: 0}, common.Vector4{W: 1}, nil, func(e *multiplayer.SpaceEntity) {
		parent = e
	})
	parentID := parent.ID()
	f.Engine().CreateEntity("Child", common.Vector3{X: 2, Y: 0, Z: 0}, common.Vector4{W: 1}, &parentID, func(e *multiplayer.SpaceEntity) {
		child = e
	})

	fmt.Printf("child global position before destroy: %+v\n", child.GlobalPosition())

	f.Engine().DestroyEntity(parent, func(ok bool) {
		fmt.Printf("destroy ok=%v, child now parentless=%v\n", ok, child.ParentID() == nil)
	})
}
