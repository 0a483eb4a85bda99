package main

import (
	"fmt"

	"github.com/sanity-io/litter"

	"github.com/josephg/causal-graph/causalgraph"
	"github.com/josephg/causal-graph/wire"
)

func main() {
	litter.Config.HidePrivateFields = false

	alice := causalgraph.CreateCG()
	bob := causalgraph.CreateCG()

	if _, err := alice.Add("alice", 0, 3, nil); err != nil {
		panic(err)
	}
	if _, err := bob.Add("bob", 0, 2, nil); err != nil {
		panic(err)
	}

	fmt.Println("alice before sync:")
	litter.Dump(alice.Summarize())
	fmt.Println("bob before sync:")
	litter.Dump(bob.Summarize())

	if _, err := wire.MergeLocal(alice, bob); err != nil {
		panic(err)
	}
	if _, err := wire.MergeLocal(bob, alice); err != nil {
		panic(err)
	}

	if err := causalgraph.Check(alice); err != nil {
		panic(err)
	}
	if err := causalgraph.Check(bob); err != nil {
		panic(err)
	}

	fmt.Println("alice after sync:")
	litter.Dump(alice.Summarize())
	fmt.Println("bob after sync:")
	litter.Dump(bob.Summarize())

	aliceHeads, err := alice.LVListToPub(alice.Heads())
	if err != nil {
		panic(err)
	}
	bobHeads, err := bob.LVListToPub(bob.Heads())
	if err != nil {
		panic(err)
	}
	fmt.Printf("alice heads: %v\n", aliceHeads)
	fmt.Printf("bob heads:   %v\n", bobHeads)
}
