package relay

import "golang.org/x/sys/unix"

// Linux names the pending-bytes ioctl TIOCINQ.
const fionread = unix.TIOCINQ
