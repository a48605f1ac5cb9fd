package cos

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/teris-io/shortid"
)

// Alphabet for generating tmp-directory tie-breakers, similar to shortid.DEFAULT_ABC.
// NOTE: len(tieABC) > 0x3f - see GenTie().
const tieABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sid  *shortid.Shortid
	rtie int32
)

func init() {
	sid = shortid.MustNew(4 /*worker*/, tieABC, uint64(os.Getpid()))
}

// GenTie returns a short, process-local, monotonically-varying tie-breaker,
// used to make `tmp-<pid>-<tie>` directory names collision-free across
// concurrent savers within the same process.
func GenTie() string {
	tie := atomic.AddInt32(&rtie, 1)
	b0 := tieABC[tie&0x3f]
	b1 := tieABC[-tie&0x3f]
	b2 := tieABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

// GenRunID returns a globally-unique, human-readable identifier from
// the process's shortid generator.
func GenRunID() string {
	return sid.MustGenerate()
}

// TmpName builds a `<base>.tmp-<pid>-<tie>` sibling path for atomic rename.
func TmpName(base string) string {
	return fmt.Sprintf("%s.tmp-%d-%s", base, os.Getpid(), GenTie())
}
