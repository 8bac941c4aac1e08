package broadcast

import (
	"context"

	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
)

// Poller is started when another instance of the device begins polling.
type Poller interface {
	Join(ctx context.Context)
}

type CoordinatorOpt func(*Coordinator)

func WithLogger(logger *zap.Logger) CoordinatorOpt {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// Coordinator relays reconnect-request messages between instances of the
// same device. It does not elect a leader: every instance that hears a
// request starts its own polling.
type Coordinator struct {
	logger   *zap.Logger
	local    Local
	deviceID string
	origin   string
	poller   Poller
}

func NewCoordinator(local Local, deviceID, origin string, poller Poller, opts ...CoordinatorOpt) *Coordinator {
	c := &Coordinator{
		logger:   zap.NewNop(),
		local:    local,
		deviceID: deviceID,
		origin:   origin,
		poller:   poller,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Announce tells the other instances that this one started polling.
func (c *Coordinator) Announce() {
	err := c.local.Post(Message{Type: TypeReconnectRequest, DeviceID: c.deviceID, Origin: c.origin})
	if err != nil {
		c.logger.Debug("failed to post reconnect request", zap.Error(err))
	}
}

// Run listens for requests until ctx is done or the channel is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	msgs, cancel := c.local.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if !c.accept(msg) {
				continue
			}
			c.logger.Debug("reconnect requested by another instance", zap.Object("msg", msg))
			c.poller.Join(ctx)
		}
	}
}

func (c *Coordinator) accept(msg Message) bool {
	if msg.Type != TypeReconnectRequest || msg.Origin == c.origin {
		return false
	}
	if msg.DeviceID != c.deviceID {
		c.logger.Debug("request from another device", log.ZDevice(msg.DeviceID))
		return false
	}
	return true
}
