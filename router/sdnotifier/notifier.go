package sdnotifier

import (
	"net"
	"os"

	"github.com/pkg/errors"
)

// Notifier reports readiness to systemd over NOTIFY_SOCKET. Without the
// socket every call is a no-op unless debug is set.
type Notifier struct {
	sock  net.Conn
	debug bool
}

func NewNotifier(debug bool) (*Notifier, error) {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		if debug {
			return nil, errors.New("NOTIFY_SOCKET is not set")
		}
		return &Notifier{debug: debug}, nil
	}

	sock, err := net.Dial("unixgram", addr)
	if err != nil {
		if debug {
			return nil, err
		}
		sock = nil
	}
	return &Notifier{sock: sock, debug: debug}, nil
}

func (n *Notifier) Ready() error {
	return n.send([]byte("READY=1\n"))
}

func (n *Notifier) Stopping() error {
	return n.send([]byte("STOPPING=1\n"))
}

func (n *Notifier) Reloading() error {
	return n.send([]byte("RELOADING=1\n"))
}

func (n *Notifier) send(msg []byte) error {
	if n.sock == nil {
		return nil
	}
	_, err := n.sock.Write(msg)
	if n.debug {
		return err
	}
	return nil
}

func (n *Notifier) Close() error {
	if n.sock == nil {
		return nil
	}
	return n.sock.Close()
}
