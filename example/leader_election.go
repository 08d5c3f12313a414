package main

import (
	"fmt"

	"github.com/magnopus-opensource/csp-realtime/election"
	"github.com/magnopus-opensource/csp-realtime/transport/fake"
)

// Three clients join a space in order, then the current leader disconnects;
// prints the leader id after each step to show the bully algorithm settling
// on a new leader from the remaining peers.
func main() {
	t := fake.New()
	le1 := election.New(3, t, nil, 0)
	le1.NoteClientJoined(1)
	le1.NoteClientJoined(2)
	le1.NoteClientJoined(3)
	printLeader("after join", le1)

	le1.NoteClientLeft(1)
	printLeader("after client 1 leaves", le1)
}

func printLeader(step string, le *election.LeaderElection) {
	id, ok := le.Leader()
	fmt.Printf("%s: leader=%d known=%v\n", step, id, ok)
}
