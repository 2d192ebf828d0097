//go:build linux

package sockcan

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// openBCM opens a broadcast manager socket connected to the CAN device.
// The socket is non blocking and handed to the runtime poller, so closing
// it releases a pending read.
func openBCM(device string) (io.ReadWriteCloser, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_DGRAM, unix.CAN_BCM)
	if err != nil {
		return nil, fmt.Errorf("bcm socket: %w", err)
	}

	ifr, err := unix.NewIfreq(device)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("interface %s: %w", device, err)
	}

	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("interface %s index: %w", device, err)
	}

	if err := unix.Connect(fd, &unix.SockaddrCAN{Ifindex: int(ifr.Uint32())}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bcm connect %s: %w", device, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bcm nonblock: %w", err)
	}

	return os.NewFile(uintptr(fd), "bcm:"+device), nil
}
