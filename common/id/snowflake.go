package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the process-wide generator. Each deployed process must
// use a distinct node ID so ids never collide across instances.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New mints a time-ordered unique int64. Init must have been called.
func New() int64 {
	if node == nil {
		panic(fmt.Errorf("id: Init not called"))
	}
	return node.Generate().Int64()
}
