// Package idgen issues the prefixed, strictly increasing identifiers used for
// customers, accounts, and transactions.
package idgen

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
)

// Kind scopes a counter. Identifiers are unique within a kind.
type Kind string

const (
	KindAccount     Kind = "account"
	KindCustomer    Kind = "customer"
	KindTransaction Kind = "transaction"
)

var prefixes = map[Kind]string{
	KindAccount:     "ACC_",
	KindCustomer:    "CUST_",
	KindTransaction: "TXN_",
}

// Kinds lists every counter scope, in seeding order.
func Kinds() []Kind {
	return []Kind{KindAccount, KindCustomer, KindTransaction}
}

// SequenceSource reports the highest numeric suffix already persisted for a
// kind, so counters survive restarts without reissuing identifiers.
type SequenceSource interface {
	MaxSequence(ctx context.Context, kind Kind) (uint64, error)
}

// Generator hands out identifiers of the form <PREFIX><n> with n strictly
// increasing per kind. Safe for concurrent use.
type Generator struct {
	counters map[Kind]*atomic.Uint64
	degraded atomic.Bool
}

func New() *Generator {
	g := &Generator{counters: make(map[Kind]*atomic.Uint64, len(prefixes))}
	for kind := range prefixes {
		g.counters[kind] = new(atomic.Uint64)
	}
	return g
}

// Seed initializes each counter from the persisted maximum. A kind whose
// maximum cannot be read keeps its zero-based counter and marks the generator
// degraded; the health endpoint reports that state so a deployment can refuse
// traffic instead of risking identifier collisions.
func (g *Generator) Seed(ctx context.Context, src SequenceSource) error {
	var firstErr error
	for _, kind := range Kinds() {
		max, err := src.MaxSequence(ctx, kind)
		if err != nil {
			log.Printf("WARN id generator degraded: cannot read persisted maximum for %s: %v", kind, err)
			g.degraded.Store(true)
			if firstErr == nil {
				firstErr = fmt.Errorf("seed %s counter: %w", kind, err)
			}
			continue
		}
		g.counters[kind].Store(max)
	}
	return firstErr
}

// Next returns the next identifier for kind. No two concurrent calls observe
// the same value.
func (g *Generator) Next(kind Kind) string {
	c, ok := g.counters[kind]
	if !ok {
		panic("idgen: unknown kind " + string(kind))
	}
	return prefixes[kind] + strconv.FormatUint(c.Add(1), 10)
}

// Degraded reports whether any counter fell back to zero during seeding.
func (g *Generator) Degraded() bool {
	return g.degraded.Load()
}

// Sequence extracts the numeric suffix of an identifier issued by a Generator.
// It returns 0, false for identifiers in any other shape.
func Sequence(id string) (uint64, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 || i == len(id)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
