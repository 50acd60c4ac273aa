package intake

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Namer generates voicenote_<unix seconds>_<8 hex>.webm filenames.
type Namer struct {
	now func() time.Time
	pid int
	seq atomic.Uint64
}

// NewNamer returns a Namer using now as its clock; nil means time.Now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now, pid: os.Getpid()}
}

// Next returns a fresh filename. Every call hashes a distinct input, but the 8 hex digits can
// still collide; a colliding save overwrites the earlier file.
func (n *Namer) Next() string {
	t := n.now()
	seq := n.seq.Add(1)
	sum := md5.Sum(fmt.Appendf(nil, "%d.%d.%d", t.UnixNano(), n.pid, seq))
	return fmt.Sprintf("voicenote_%d_%s.webm", t.Unix(), hex.EncodeToString(sum[:])[:8])
}
