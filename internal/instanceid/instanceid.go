// Package instanceid generates the one short process-instance identifier
// this daemon stamps into its log title, adapted from the teacher's
// cmn/cos.GenUUID: a teris-io/shortid generator seeded once at startup.
// Unlike the teacher's daemon ID (persisted across restarts), this ID is
// deliberately fresh every run, so a log tail spanning a crash-restart
// cycle can tell the two processes apart.
package instanceid

import (
	"github.com/teris-io/shortid"
)

const abc = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

// New returns a fresh 9-character instance id, seeded from seed (the
// caller typically passes a timestamp or PID-derived value, since this
// package avoids crypto/rand to keep the daemon's entropy use minimal).
func New(seed uint64) string {
	sid := shortid.MustNew(1, abc, seed)
	return sid.MustGenerate()
}
