package relay

import "golang.org/x/sys/unix"

const fionread = unix.FIONREAD
