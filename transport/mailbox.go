package transport

import "sync"

type mailKind int

const (
	mailOpen mailKind = iota
	mailData
	mailError
	mailClose
)

type mail struct {
	kind mailKind
	data []byte
	err  error
}

// Mailbox runs connection callbacks on one goroutine, in the order the
// events were posted. Events are held until SetHandlers is called, so every
// Mailbox must get handlers eventually. The goroutine exits after OnClose.
type Mailbox struct {
	mu          sync.Mutex
	cond        *sync.Cond
	handlers    Handlers
	handlersSet bool
	queue       []mail
	closed      bool
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

func (m *Mailbox) SetHandlers(h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = h
	m.handlersSet = true
	m.cond.Broadcast()
}

func (m *Mailbox) Open() bool { return m.post(mail{kind: mailOpen}) }

func (m *Mailbox) Data(b []byte) bool { return m.post(mail{kind: mailData, data: b}) }

func (m *Mailbox) Error(err error) bool { return m.post(mail{kind: mailError, err: err}) }

// Close posts the close event. It reports false if it was already posted.
func (m *Mailbox) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.closed = true
	m.queue = append(m.queue, mail{kind: mailClose})
	m.cond.Broadcast()
	return true
}

// Closed reports whether the close event was posted.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mailbox) post(ev mail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, ev)
	m.cond.Broadcast()
	return true
}

func (m *Mailbox) run() {
	for {
		m.mu.Lock()
		for !m.handlersSet || len(m.queue) == 0 {
			m.cond.Wait()
		}
		ev := m.queue[0]
		m.queue = m.queue[1:]
		h := m.handlers
		m.mu.Unlock()

		switch ev.kind {
		case mailOpen:
			if h.OnOpen != nil {
				h.OnOpen()
			}
		case mailData:
			if h.OnData != nil {
				h.OnData(ev.data)
			}
		case mailError:
			if h.OnError != nil {
				h.OnError(ev.err)
			}
		case mailClose:
			if h.OnClose != nil {
				h.OnClose()
			}
			return
		}
	}
}
