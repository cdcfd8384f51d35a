package server

import (
	"github.com/ermau/gablarski/internal/protocol"
)

// Connection abstracts the transport underneath a single client. The
// transport layer owns deserialization and delivers decoded messages to
// Server.Receive; the server only ever pushes messages back through Send.
//
// Send may block; the server wraps every connection in a buffered outbox so
// a slow receiver never stalls message dispatch.
type Connection interface {
	// Send delivers a message to the client.
	Send(message protocol.Message) error

	// Close tears down the transport connection.
	Close() error

	// IPAddr returns the remote address, used for ban checks and logging.
	IPAddr() string
}

// outbox decouples dispatch from transport writes. Messages to a connection
// are queued and written by a dedicated goroutine; when the queue is full
// the message is dropped, never blocking the dispatch loop.
type outbox struct {
	conn  Connection
	queue chan protocol.Message
	quit  chan struct{}
}

const outboxDepth = 64

func newOutbox(conn Connection, onError func(error)) *outbox {
	o := &outbox{
		conn:  conn,
		queue: make(chan protocol.Message, outboxDepth),
		quit:  make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-o.quit:
				return
			case message := <-o.queue:
				if err := o.conn.Send(message); err != nil {
					onError(err)
				}
			}
		}
	}()

	return o
}

// push enqueues a message, reporting whether it was accepted.
func (o *outbox) push(message protocol.Message) bool {
	select {
	case o.queue <- message:
		return true
	case <-o.quit:
		return false
	default:
		return false
	}
}

func (o *outbox) close() {
	close(o.quit)
}
