package main

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// idGenerator returns a process-unique connection identity.
type idGenerator func() string

func uuidGenerator() idGenerator {
	return uuid.NewString
}

func counterGenerator() idGenerator {
	var n atomic.Uint64
	return func() string {
		return strconv.FormatUint(n.Add(1), 10)
	}
}

func newIDGenerator(kind string) (idGenerator, error) {
	switch kind {
	case "", "uuid":
		return uuidGenerator(), nil
	case "counter":
		return counterGenerator(), nil
	}
	return nil, fmt.Errorf("unknown id generator %q (want uuid or counter)", kind)
}
