// Package keys derives the namespaced Redis key names used to store
// scheduler definitions, the repeat index, and the deterministic job ids
// the scheduler hands to the delayed-queue enqueuer. See spec.md §4.2.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys derives every key the scheduler core touches from a single
// namespace prefix. Callers are responsible for choosing ids that do not
// collide with the namespace separator.
type Keys struct {
	prefix string
}

func New(namespace string) Keys {
	return Keys{prefix: strings.TrimSuffix(namespace, ":")}
}

// Index is the sorted set of scheduler ids, scored by nextFireMs.
func (k Keys) Index() string {
	return k.prefix + ":repeat"
}

// Definition is the hash holding a single scheduler's stored fields.
func (k Keys) Definition(id string) string {
	return k.prefix + ":repeat:" + id
}

// Instance builds the deterministic job id for one fire of a scheduler.
// It doubles as the uniqueness guard the enqueuer must reject duplicates
// of: repeat:<id>:<nextFireMs>.
func Instance(schedulerID string, nextFireMs int64) string {
	return "repeat:" + schedulerID + ":" + strconv.FormatInt(nextFireMs, 10)
}

// Job is the hash holding a concrete job record, namespaced the same way
// as every other entity the scheduler writes.
func (k Keys) Job(jobID string) string {
	return k.prefix + ":" + jobID
}

// Delayed is the sorted set the (out-of-scope) dispatcher drains,
// scored by the job's runnable-at time. The scheduler only ever adds to
// it inside the same transaction that advances a schedule.
func (k Keys) Delayed() string {
	return k.prefix + ":delayed"
}

func (k Keys) String() string {
	return fmt.Sprintf("keys(prefix=%s)", k.prefix)
}
