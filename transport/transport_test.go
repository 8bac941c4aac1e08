package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jd-code76/provinent-scripture-study-sub000/identity"
	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport/memnet"
)

func TestOpenIsLazyAndIdempotent(t *testing.T) {
	net := memnet.New()
	ids := identity.New(store.NewMemory())
	var ready []string
	tr := transport.New(net, ids,
		transport.WithLogger(logtest.New(t)),
		transport.WithOnReady(func(id string) { ready = append(ready, id) }),
	)
	t.Cleanup(func() { tr.Close() })
	require.Empty(t, tr.ID())

	id, err := tr.Open(context.Background())
	require.NoError(t, err)
	require.True(t, identity.ValidCode(id))
	code, err := ids.PeerID()
	require.NoError(t, err)
	require.Equal(t, code, id)

	again, err := tr.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, []string{id}, ready)
	require.True(t, net.Registered(id))

	require.NoError(t, tr.Close())
	require.False(t, net.Registered(id))
	require.Empty(t, tr.ID())
}

func TestOpenRegeneratesTakenCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	net := memnet.New()
	_, err := net.Open(context.Background(), "TAKEN123")
	require.NoError(t, err)

	codes := transport.NewMockCodeSource(ctrl)
	gomock.InOrder(
		codes.EXPECT().CurrentCode().Return("TAKEN123", nil),
		codes.EXPECT().RegenerateCode().Return("FRESH123", nil),
		codes.EXPECT().CurrentCode().Return("FRESH123", nil),
	)
	tr := transport.New(net, codes)
	t.Cleanup(func() { tr.Close() })

	id, err := tr.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, "FRESH123", id)
}

func TestOpenGivesUpAfterAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := transport.NewMockProvider(ctrl)
	codes := transport.NewMockCodeSource(ctrl)
	codes.EXPECT().CurrentCode().Return("AAAA", nil).Times(2)
	codes.EXPECT().RegenerateCode().Return("AAAA", nil).Times(2)
	provider.EXPECT().Open(gomock.Any(), "AAAA").Return(nil, transport.ErrUnavailableID).Times(2)

	tr := transport.New(provider, codes, transport.WithOpenAttempts(2))
	_, err := tr.Open(context.Background())
	require.ErrorIs(t, err, transport.ErrUnavailableID)
	require.Equal(t, transport.KindUnavailableID, transport.KindOf(err))
}

func TestOpenOtherError(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := transport.NewMockProvider(ctrl)
	codes := transport.NewMockCodeSource(ctrl)
	codes.EXPECT().CurrentCode().Return("AAAA", nil)
	boom := errors.New("signal server down")
	provider.EXPECT().Open(gomock.Any(), "AAAA").Return(nil, boom)

	tr := transport.New(provider, codes)
	_, err := tr.Open(context.Background())
	require.ErrorIs(t, err, boom)
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, transport.KindTransport, terr.Kind)
}

func TestConnectRetriesPeerUnavailableOnce(t *testing.T) {
	net := memnet.New()
	clock := clockwork.NewFakeClock()
	tr := transport.New(net, identity.New(store.NewMemory()),
		transport.WithClock(clock),
		transport.WithRetryDelay(2*time.Second),
	)
	t.Cleanup(func() { tr.Close() })

	type result struct {
		conn transport.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := tr.Connect(context.Background(), "LATE1234")
		done <- result{conn, err}
	}()

	clock.BlockUntil(1)
	ep, err := net.Open(context.Background(), "LATE1234")
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })
	ep.SetIncomingHandler(func(c transport.Conn) { c.SetHandlers(transport.Handlers{}) })
	clock.Advance(2 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "LATE1234", res.conn.RemoteID())
	res.conn.SetHandlers(transport.Handlers{})
}

func TestConnectPeerUnavailable(t *testing.T) {
	net := memnet.New()
	clock := clockwork.NewFakeClock()
	tr := transport.New(net, identity.New(store.NewMemory()), transport.WithClock(clock))
	t.Cleanup(func() { tr.Close() })

	done := make(chan error, 1)
	go func() {
		_, err := tr.Connect(context.Background(), "GONE1234")
		done <- err
	}()
	clock.BlockUntil(1)
	clock.Advance(2 * time.Second)

	err := <-done
	require.ErrorIs(t, err, transport.ErrPeerUnavailable)
	require.Equal(t, transport.KindPeerUnavailable, transport.KindOf(err))
}

func TestIncomingHandlerSurvivesReopen(t *testing.T) {
	net := memnet.New()
	tr := transport.New(net, identity.New(store.NewMemory()))
	t.Cleanup(func() { tr.Close() })

	got := make(chan string, 2)
	tr.SetIncomingHandler(func(c transport.Conn) {
		c.SetHandlers(transport.Handlers{})
		got <- c.RemoteID()
	})

	dial := func(target string) {
		ep, err := net.Open(context.Background(), "DIALER12")
		require.NoError(t, err)
		defer ep.Close()
		c, err := ep.Connect(context.Background(), target)
		require.NoError(t, err)
		c.SetHandlers(transport.Handlers{})
		require.Equal(t, "DIALER12", <-got)
	}

	id, err := tr.Open(context.Background())
	require.NoError(t, err)
	dial(id)

	require.NoError(t, tr.Close())
	id, err = tr.Open(context.Background())
	require.NoError(t, err)
	dial(id)
}

func TestKindOf(t *testing.T) {
	require.Equal(t, transport.Kind(""), transport.KindOf(nil))
	require.Equal(t, transport.KindPeerUnavailable, transport.KindOf(transport.ErrPeerUnavailable))
	require.Equal(t, transport.KindTransport, transport.KindOf(errors.New("x")))
}
